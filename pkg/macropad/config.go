package macropad

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/thoas/go-funk"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jaredtrent/sonos-macropad/pkg/macropad/util"
)

// CanonicalConfig provides application-wide access to configuration fields,
// as well as loading/file watching logic for the configuration file
type CanonicalConfig struct {
	Sonos struct {
		APIHost          string
		APIPort          int
		PrimaryRoom      string
		SecondaryRooms   []string
		FavoritePlaylist string
	}

	Macropad struct {
		DeviceName string
		LogFile    string
	}

	Volume volumeLimits

	logger             *zap.SugaredLogger
	notifier           Notifier
	stopWatcherChannel chan bool

	reloadConsumers []chan bool

	userConfig *viper.Viper
}

const (
	userConfigFilepath = "config.yaml"

	userConfigName = "config"
	userConfigPath = "."
	configType     = "yaml"

	configKey_APIHost          = "sonos_api_host"
	configKey_APIPort          = "sonos_api_port"
	configKey_PrimaryRoom      = "primary_room"
	configKey_SecondaryRooms   = "secondary_rooms"
	configKey_FavoritePlaylist = "favorite_playlist"

	configKey_DeviceName = "macropad_device_name"
	configKey_LogFile    = "log_file"

	configKey_PrimarySingleStep    = "primary_single_step"
	configKey_PrimaryMax           = "primary_max_volume"
	configKey_PrimaryMinGrouping   = "primary_min_grouping_volume"
	configKey_SecondaryStep        = "secondary_step"
	configKey_SecondaryMax         = "secondary_max_volume"
	configKey_SecondaryMinGrouping = "secondary_min_grouping_volume"

	default_APIHost          = "localhost"
	default_APIPort          = 5005
	default_FavoritePlaylist = ""
	default_LogFile          = "logs/sonos-macropad.log"

	default_PrimarySingleStep    = 3
	default_PrimaryMax           = 60
	default_PrimaryMinGrouping   = 10
	default_SecondaryStep        = 2
	default_SecondaryMax         = 40
	default_SecondaryMinGrouping = 5
)

var (
	hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	ipPattern       = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
	devNamePattern  = regexp.MustCompile(`^[a-zA-Z0-9_.\- ]+$`)
)

// NewConfig creates a config instance and sets up its viper instance
func NewConfig(logger *zap.SugaredLogger, notifier Notifier) (*CanonicalConfig, error) {
	logger = logger.Named("config")

	cc := &CanonicalConfig{
		logger:             logger,
		notifier:           notifier,
		reloadConsumers:    []chan bool{},
		stopWatcherChannel: make(chan bool),
	}

	userConfig := viper.New()
	userConfig.SetConfigName(userConfigName)
	userConfig.SetConfigType(configType)
	userConfig.AddConfigPath(userConfigPath)

	userConfig.SetDefault(configKey_APIHost, default_APIHost)
	userConfig.SetDefault(configKey_APIPort, default_APIPort)
	userConfig.SetDefault(configKey_SecondaryRooms, []string{})
	userConfig.SetDefault(configKey_FavoritePlaylist, default_FavoritePlaylist)
	userConfig.SetDefault(configKey_LogFile, default_LogFile)
	userConfig.SetDefault(configKey_PrimarySingleStep, default_PrimarySingleStep)
	userConfig.SetDefault(configKey_PrimaryMax, default_PrimaryMax)
	userConfig.SetDefault(configKey_PrimaryMinGrouping, default_PrimaryMinGrouping)
	userConfig.SetDefault(configKey_SecondaryStep, default_SecondaryStep)
	userConfig.SetDefault(configKey_SecondaryMax, default_SecondaryMax)
	userConfig.SetDefault(configKey_SecondaryMinGrouping, default_SecondaryMinGrouping)

	cc.userConfig = userConfig

	logger.Debug("Created config instance")

	return cc, nil
}

// Load reads the config file from disk and tries to parse and validate it
func (cc *CanonicalConfig) Load() error {
	cc.logger.Debugw("Loading config", "path", userConfigFilepath)

	if !util.FileExists(userConfigFilepath) {
		cc.logger.Warnw("Config file not found", "path", userConfigFilepath)
		cc.notifier.Notify("Can't find configuration!",
			fmt.Sprintf("%s must be in the same directory. Please re-launch", userConfigFilepath))
		return fmt.Errorf("config file doesn't exist: %s", userConfigFilepath)
	}

	if err := cc.userConfig.ReadInConfig(); err != nil {
		cc.logger.Warnw("Viper failed to read user config", "error", err)
		if strings.Contains(err.Error(), "yaml:") {
			cc.notifier.Notify("Invalid configuration!",
				fmt.Sprintf("Please make sure %s is in a valid YAML format.", userConfigFilepath))
		} else {
			cc.notifier.Notify("Error loading configuration!", "Please check the logs for more details.")
		}
		return fmt.Errorf("read user config: %w", err)
	}

	if err := cc.populateFromViper(); err != nil {
		cc.logger.Warnw("Config validation failed", "error", err)
		cc.notifier.Notify("Invalid configuration!", "Please check the logs for more details.")
		return fmt.Errorf("validate config: %w", err)
	}

	cc.logger.Info("Loaded config successfully")
	cc.logger.Infow("Config values",
		"sonos", cc.Sonos,
		"macropad", cc.Macropad,
		"volume", cc.Volume,
	)

	return nil
}

// SubscribeToChanges allows external components to receive updates when the config is reloaded
func (cc *CanonicalConfig) SubscribeToChanges() chan bool {
	c := make(chan bool)
	cc.reloadConsumers = append(cc.reloadConsumers, c)

	return c
}

// WatchConfigFileChanges starts watching for configuration file changes
// and attempts reloading the config when they happen
func (cc *CanonicalConfig) WatchConfigFileChanges() {
	cc.logger.Debugw("Starting to watch user config file for changes", "path", userConfigFilepath)

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)

	lastAttemptedReload := time.Now()

	// establish watch using viper as opposed to doing it ourselves, though our internal cooldown is still required
	cc.userConfig.WatchConfig()
	cc.userConfig.OnConfigChange(func(event fsnotify.Event) {

		// when we get a write event...
		if event.Op&fsnotify.Write == fsnotify.Write {

			now := time.Now()

			// ... check if it's not a duplicate (many editors will write to a file twice)
			if lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {

				// and attempt reload if appropriate
				cc.logger.Debugw("Config file modified, attempting reload", "event", event)

				// wait a bit to let the editor actually flush the new file contents to disk
				<-time.After(delayBetweenEventAndReload)

				if err := cc.Load(); err != nil {
					cc.logger.Warnw("Failed to reload config file", "error", err)
				} else {
					cc.logger.Info("Reloaded config successfully")
					cc.notifier.Notify("Configuration reloaded!", "Your changes have been applied.")

					cc.onConfigReloaded()
				}

				// don't forget to update the time
				lastAttemptedReload = now
			}
		}
	})

	// wait till they stop us
	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopping user config file watcher")
	cc.userConfig.OnConfigChange(nil)
}

// StopWatchingConfigFile signals our filesystem watcher to stop
func (cc *CanonicalConfig) StopWatchingConfigFile() {
	cc.stopWatcherChannel <- true

	// Close all reload consumer channels to signal goroutines to exit
	cc.closeReloadChannels()
}

// closeReloadChannels closes all reload consumer channels to signal goroutines to exit
func (cc *CanonicalConfig) closeReloadChannels() {
	for _, ch := range cc.reloadConsumers {
		close(ch)
	}
	cc.reloadConsumers = nil
	cc.logger.Debug("Closed all config reload channels")
}

func (cc *CanonicalConfig) populateFromViper() error {
	cc.Sonos.APIHost = cc.userConfig.GetString(configKey_APIHost)
	cc.Sonos.APIPort = cc.userConfig.GetInt(configKey_APIPort)
	cc.Sonos.PrimaryRoom = cc.userConfig.GetString(configKey_PrimaryRoom)
	cc.Sonos.SecondaryRooms = cc.userConfig.GetStringSlice(configKey_SecondaryRooms)
	cc.Sonos.FavoritePlaylist = cc.userConfig.GetString(configKey_FavoritePlaylist)

	cc.Macropad.DeviceName = cc.userConfig.GetString(configKey_DeviceName)
	cc.Macropad.LogFile = cc.userConfig.GetString(configKey_LogFile)

	cc.Volume.PrimaryStep = cc.userConfig.GetInt(configKey_PrimarySingleStep)
	cc.Volume.PrimaryMax = cc.userConfig.GetInt(configKey_PrimaryMax)
	cc.Volume.PrimaryMinGrouping = cc.userConfig.GetInt(configKey_PrimaryMinGrouping)
	cc.Volume.SecondaryStep = cc.userConfig.GetInt(configKey_SecondaryStep)
	cc.Volume.SecondaryMax = cc.userConfig.GetInt(configKey_SecondaryMax)
	cc.Volume.SecondaryMinGrouping = cc.userConfig.GetInt(configKey_SecondaryMinGrouping)

	if err := cc.validate(); err != nil {
		return err
	}

	cc.logger.Debug("Populated config fields from viper")

	return nil
}

// validate checks every field against its allowed range, collecting all
// violations so the user can fix the whole file in one go.
func (cc *CanonicalConfig) validate() error {
	var errs error

	if !ipPattern.MatchString(cc.Sonos.APIHost) && !hostnamePattern.MatchString(cc.Sonos.APIHost) {
		errs = multierr.Append(errs, fmt.Errorf("%s: %q is not a valid hostname or IP address", configKey_APIHost, cc.Sonos.APIHost))
	}

	if cc.Sonos.APIPort < 1 || cc.Sonos.APIPort > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("%s: must be between 1 and 65535, got %d", configKey_APIPort, cc.Sonos.APIPort))
	}

	if cc.Sonos.PrimaryRoom == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s: must be set", configKey_PrimaryRoom))
	}

	if funk.ContainsString(cc.Sonos.SecondaryRooms, cc.Sonos.PrimaryRoom) {
		errs = multierr.Append(errs, fmt.Errorf("%s: must not contain the primary room %q", configKey_SecondaryRooms, cc.Sonos.PrimaryRoom))
	}

	if len(funk.UniqString(cc.Sonos.SecondaryRooms)) != len(cc.Sonos.SecondaryRooms) {
		errs = multierr.Append(errs, fmt.Errorf("%s: must not contain duplicate rooms", configKey_SecondaryRooms))
	}

	if cc.Macropad.DeviceName == "" || !devNamePattern.MatchString(cc.Macropad.DeviceName) {
		errs = multierr.Append(errs, fmt.Errorf("%s: %q is not a valid device name", configKey_DeviceName, cc.Macropad.DeviceName))
	}

	v := cc.Volume

	if v.PrimaryStep < 1 || v.PrimaryStep > 10 {
		errs = multierr.Append(errs, fmt.Errorf("%s: must be between 1 and 10, got %d", configKey_PrimarySingleStep, v.PrimaryStep))
	}

	if v.PrimaryMax < 1 || v.PrimaryMax > 100 {
		errs = multierr.Append(errs, fmt.Errorf("%s: must be between 1 and 100, got %d", configKey_PrimaryMax, v.PrimaryMax))
	} else {
		if v.PrimaryStep >= v.PrimaryMax {
			errs = multierr.Append(errs, fmt.Errorf("%s: must be lower than %s", configKey_PrimarySingleStep, configKey_PrimaryMax))
		}
		if v.PrimaryMinGrouping >= v.PrimaryMax {
			errs = multierr.Append(errs, fmt.Errorf("%s: must be lower than %s", configKey_PrimaryMinGrouping, configKey_PrimaryMax))
		}
		if v.SecondaryMax > v.PrimaryMax {
			errs = multierr.Append(errs, fmt.Errorf("%s: must not exceed %s", configKey_SecondaryMax, configKey_PrimaryMax))
		}
	}

	if v.PrimaryMinGrouping < 1 || v.PrimaryMinGrouping > 50 {
		errs = multierr.Append(errs, fmt.Errorf("%s: must be between 1 and 50, got %d", configKey_PrimaryMinGrouping, v.PrimaryMinGrouping))
	}

	if v.SecondaryStep < 1 || v.SecondaryStep > 5 {
		errs = multierr.Append(errs, fmt.Errorf("%s: must be between 1 and 5, got %d", configKey_SecondaryStep, v.SecondaryStep))
	}

	if v.SecondaryMax < 1 || v.SecondaryMax > 100 {
		errs = multierr.Append(errs, fmt.Errorf("%s: must be between 1 and 100, got %d", configKey_SecondaryMax, v.SecondaryMax))
	} else {
		if v.SecondaryStep >= v.SecondaryMax {
			errs = multierr.Append(errs, fmt.Errorf("%s: must be lower than %s", configKey_SecondaryStep, configKey_SecondaryMax))
		}
		if v.SecondaryMinGrouping >= v.SecondaryMax {
			errs = multierr.Append(errs, fmt.Errorf("%s: must be lower than %s", configKey_SecondaryMinGrouping, configKey_SecondaryMax))
		}
	}

	if v.SecondaryMinGrouping < 1 || v.SecondaryMinGrouping > 20 {
		errs = multierr.Append(errs, fmt.Errorf("%s: must be between 1 and 20, got %d", configKey_SecondaryMinGrouping, v.SecondaryMinGrouping))
	}

	return errs
}

func (cc *CanonicalConfig) onConfigReloaded() {
	cc.logger.Debug("Notifying consumers about configuration reload")

	for _, consumer := range cc.reloadConsumers {
		// Safely send to channel, handling closed channels
		func() {
			defer func() {
				if r := recover(); r != nil {
					// Channel is closed, ignore
					cc.logger.Debugw("Config reload channel closed, skipping notification", "recover", r)
				}
			}()
			select {
			case consumer <- true:
			default:
				// Channel is full, skip
			}
		}()
	}
}
