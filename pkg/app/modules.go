package app

// Compiled-in modules. Each registers itself with core in init.
import (
	_ "github.com/flemzord/sitterd/internal/cron"
	_ "github.com/flemzord/sitterd/internal/gateway"
	_ "github.com/flemzord/sitterd/internal/maintenance"
	_ "github.com/flemzord/sitterd/modules/blob/fs"
	_ "github.com/flemzord/sitterd/modules/store/memory"
	_ "github.com/flemzord/sitterd/modules/store/postgres"
	_ "github.com/flemzord/sitterd/modules/store/sqlite"
)
