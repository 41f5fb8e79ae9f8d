package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for the configuration parameters.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main settings
	viper.SetDefault("main.name", "bdnsync")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/bdnsync.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 10*1024*1024)

	// Registry API settings
	viper.SetDefault("registry.endpoint", "https://www.infosubvenciones.es/bdnstrans/GE/es/api/v2.1/listadoconvocatoria")
	viper.SetDefault("registry.pagesize", 200)
	viper.SetDefault("registry.timeoutseconds", 60)

	// Sync settings
	viper.SetDefault("sync.debug", false)
	viper.SetDefault("sync.defaulttype", "incremental")
	viper.SetDefault("sync.startyear", 2008)
	viper.SetDefault("sync.stalerunmaxhours", 24)

	// Output settings
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "bdnsync.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "bdnsync")
	viper.SetDefault("output.mysql.password", "secret")
	viper.SetDefault("output.mysql.database", "bdnsync")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	// Web server settings
	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8090")
	viper.SetDefault("webserver.log.enabled", true)
	viper.SetDefault("webserver.log.path", "logs/webserver.log")
	viper.SetDefault("webserver.log.rotation", RotationDaily)
	viper.SetDefault("webserver.log.maxsize", 10*1024*1024)
}
