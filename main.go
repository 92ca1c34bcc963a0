// Package main provides the entry point for the voxplay CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/voxplay/voxplay/internal/audio"
	"github.com/voxplay/voxplay/internal/cache"
	"github.com/voxplay/voxplay/internal/channels"
	"github.com/voxplay/voxplay/internal/queue"
	"github.com/voxplay/voxplay/internal/sink"
	"github.com/voxplay/voxplay/internal/waveform"
	"github.com/voxplay/voxplay/playback"
	"github.com/voxplay/voxplay/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile        string
	defaultConfigFile string
	profile           string
	watch             bool
	noNative          bool
	wrapQueue         bool
	mouse             bool

	rootCmd = &cobra.Command{
		Use:   "voxplay [SOURCE...]",
		Short: "Play text-to-speech audio in the terminal",
		Long: paragraph(
			fmt.Sprintf("\nPlay audio from a TTS server, %s to the output channels of a voice profile.", keyword("routed")),
		),
		Example: paragraph("voxplay story.wav\n" +
			"voxplay --profile narrator http://127.0.0.1:17493/audio/1234\n" +
			"voxplay --watch out/*.wav"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MinimumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return []string{"wav"}, cobra.ShellCompDirectiveFilterFileExt
		},
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return validateOptions()
		},
		RunE: execute,
	}
)

func validateOptions() error {
	if configFile != "" && configFile != viper.ConfigFileUsed() {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	profile = viper.GetString("profile")
	mouse = viper.GetBool("mouse")
	watch = viper.GetBool("watch")
	wrapQueue = viper.GetBool("wrap")

	if noNative {
		viper.Set("playback.native", false)
	}
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("voxplay needs a terminal: stdout is not a TTY")
	}

	cfg, err := playback.LoadConfigFromViper()
	if err != nil {
		return err
	}

	tracks := make([]queue.Track, 0, len(args))
	for _, arg := range args {
		t, err := trackFromArg(arg, profile)
		if err != nil {
			return err
		}
		tracks = append(tracks, t)
	}

	explicit := cmd.Flags().Changed("volume") || cmd.Flags().Changed("loop")
	app, err := newApp(cmd.Context(), cfg, tracks, explicit)
	if err != nil {
		return err
	}
	defer app.Close() //nolint:errcheck

	return app.runTUI()
}

func main() {
	debug := false
	for _, a := range os.Args[1:] {
		if a == "--debug" {
			debug = true
		}
	}
	closer, err := setupLog(debug || viper.GetBool("debug"))
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	playback.SetDefaults()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfigFile))
	rootCmd.PersistentFlags().String("server", "", "TTS server URL")
	rootCmd.PersistentFlags().Bool("debug", false, "write a debug log to the data dir")
	rootCmd.Flags().StringVarP(&profile, "profile", "p", "", "voice profile whose channels route the audio")
	rootCmd.Flags().BoolVarP(&watch, "watch", "w", false, "reload local files when they change")
	rootCmd.Flags().BoolVar(&noNative, "no-native", false, "never use the native multi-device sink")
	rootCmd.Flags().BoolVar(&wrapQueue, "wrap", false, "wrap around at the ends of the queue")
	rootCmd.Flags().Bool("loop", false, "loop the current track")
	rootCmd.Flags().Float64("volume", 1.0, "initial volume (0.0 to 1.0)")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable click to seek")

	// Config bindings
	_ = viper.BindPFlag("server.url", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("profile", rootCmd.Flags().Lookup("profile"))
	_ = viper.BindPFlag("watch", rootCmd.Flags().Lookup("watch"))
	_ = viper.BindPFlag("wrap", rootCmd.Flags().Lookup("wrap"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("playback.loop", rootCmd.Flags().Lookup("loop"))
	_ = viper.BindPFlag("playback.volume", rootCmd.Flags().Lookup("volume"))

	viper.SetDefault("profile", "")
	viper.SetDefault("mouse", false)
	viper.SetDefault("watch", false)
	viper.SetDefault("wrap", false)

	rootCmd.AddCommand(configCmd, channelsCmd, devicesCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "voxplay")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "voxplay")}, dirs...)
	}

	if c := os.Getenv("VOXPLAY_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("voxplay")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("voxplay")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		defaultConfigFile = used
		return
	}

	defaultConfigFile = filepath.Join(dirs[0], "voxplay.yml")
	if err := writeDefaultConfig(defaultConfigFile); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

// app owns every long-lived component of a playback session.
type app struct {
	cfg      playback.Config
	ui       ui.Config
	coord    *playback.Coordinator
	renderer *waveform.Renderer
	sink     *sink.Sink
	cache    *cache.Manager
	session  *session
	tracks   []queue.Track
	stopSave func()

	ctx    context.Context
	cancel context.CancelFunc
}

// newApp wires the playback stack. Saved preferences win over the config
// file unless explicitPrefs reports that volume or loop came from flags.
func newApp(parent context.Context, cfg playback.Config, tracks []queue.Track, explicitPrefs bool) (*app, error) {
	uiCfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %v", err)
	}
	uiCfg.EnableMouse = mouse
	uiCfg.Profile = profile

	ctx, cancel := context.WithCancel(parent)
	a := &app{cfg: cfg, ui: uiCfg, tracks: tracks, ctx: ctx, cancel: cancel}

	client := channels.FromConfig(cfg, channels.WithLogger(log.WithPrefix("channels")))
	var fetcher playback.AudioFetcher = client
	if cfg.Cache.Enabled {
		m, err := cache.NewManager(cfg.Cache, log.WithPrefix("cache"))
		if err != nil {
			log.Warn("audio cache disabled", "err", err)
		} else {
			a.cache = m
			m.StartCleanup(time.Hour)
			fetcher = cache.NewFetcher(client, m)
		}
	}

	out, err := audio.Shared(audio.ContextOptions{SampleRate: cfg.SampleRate, Channels: 2})
	if err != nil {
		a.Close() //nolint:errcheck
		return nil, playback.NewPlaybackError(err, "renderer", "init")
	}
	a.renderer, err = waveform.New(waveform.Options{
		Output:  out,
		Fetcher: fetcher,
		Bars:    cfg.WaveformBars,
		Tick:    cfg.TickRate,
		Logger:  log.WithPrefix("waveform"),
	})
	if err != nil {
		a.Close() //nolint:errcheck
		return nil, err
	}

	var native playback.NativeSink = sink.Unsupported{}
	if cfg.NativeRuntime {
		backend, err := nativeBackend(cfg)
		if err != nil {
			log.Warn("native output unavailable, using the waveform only", "err", err)
		} else {
			a.sink = sink.New(backend, log.WithPrefix("sink"))
			native = a.sink
		}
	}

	prefsPath, err := playback.DefaultPreferencesPath()
	if err != nil {
		log.Warn("preferences will not be saved", "err", err)
	}
	prefs := cfg.Preferences()
	if prefsPath != "" && !explicitPrefs && fileExists(prefsPath) {
		if saved, err := playback.LoadPreferences(prefsPath); err != nil {
			log.Warn("could not load preferences", "err", err)
		} else {
			prefs = saved
		}
	}
	store := playback.NewStore(prefs)

	a.coord, err = playback.NewCoordinator(playback.CoordinatorOptions{
		Renderer:      a.renderer,
		Sink:          native,
		Resolver:      profileResolver{client},
		Fetcher:       fetcher,
		Store:         store,
		NativeRuntime: cfg.NativeRuntime,
		AutoPlay:      cfg.AutoPlay,
		Logger:        log.WithPrefix("playback"),
	})
	if err != nil {
		a.Close() //nolint:errcheck
		return nil, err
	}
	go func() { _ = a.coord.Run(ctx) }()

	if prefsPath != "" {
		a.stopSave = playback.PersistPreferences(store, prefsPath, func(err error) {
			log.Warn("could not save preferences", "err", err)
		})
	}

	q := queue.New(tracks...)
	q.SetWrap(wrapQueue)
	a.session = newSession(q, a.coord, log.WithPrefix("queue"))
	a.coord.OnFinish(a.session.advance)

	go func() {
		hctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.HealthCheck(hctx); err != nil {
			log.Warn("TTS server unreachable, playing through the default output", "url", client.BaseURL(), "err", err)
		}
	}()
	return a, nil
}

func (a *app) runTUI() error {
	feed := playback.NewFeed(a.coord.Store())
	defer feed.Close()

	titles := make([]string, 0, len(a.tracks))
	for _, t := range a.tracks {
		titles = append(titles, t.Audio.Title)
	}

	p := ui.NewProgram(a.ui, ui.Options{
		Player:    a.coord,
		Navigator: a.session,
		Peaks:     a.renderer.Peaks,
		Feed:      feed,
		Snapshot:  a.coord.Store().Snapshot(),
		Tracks:    titles,
	})
	a.session.attach(p.Send)

	if watch {
		go func() {
			if err := watchTracks(a.ctx, a.tracks, a.session.Reload); err != nil {
				log.Error("error creating fsnotify watcher", "error", err)
			}
		}()
	}

	go func() {
		if err := a.session.Start(); err != nil {
			p.Send(playback.ErrorMsg{Err: err})
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// Close stops playback and releases every component.
func (a *app) Close() error {
	a.cancel()
	if a.stopSave != nil {
		a.stopSave()
	}
	var errs []error
	if a.coord != nil {
		errs = append(errs, a.coord.Close())
	}
	if a.sink != nil {
		errs = append(errs, a.sink.Close())
	}
	if a.renderer != nil {
		errs = append(errs, a.renderer.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	return errors.Join(errs...)
}

// nativeBackend prefers miniaudio, which addresses every output device, and
// falls back to the default output through oto.
func nativeBackend(cfg playback.Config) (sink.Backend, error) {
	opts := audio.ContextOptions{SampleRate: cfg.SampleRate, Channels: 2}

	mb, err := sink.NewMalgoBackend(opts, log.WithPrefix("sink"))
	if err == nil {
		return mb, nil
	}
	log.Debug("multi-device output unavailable, using the default output", "err", err)

	if _, err := audio.Shared(opts); err != nil {
		return nil, fmt.Errorf("%w: %w", playback.ErrSinkUnsupported, err)
	}
	return &sink.OtoBackend{Name: cfg.DeviceName, Options: opts}, nil
}

// profileResolver treats a profile the server does not know as one without
// channels, which routes it to the waveform.
type profileResolver struct {
	*channels.Client
}

func (r profileResolver) GetProfileChannels(ctx context.Context, profileID string) ([]string, error) {
	ids, err := r.Client.GetProfileChannels(ctx, profileID)
	if channels.IsNotFound(err) {
		log.Debug("profile has no channels", "profile", profileID)
		return nil, nil
	}
	return ids, err
}
