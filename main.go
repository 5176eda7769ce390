// Package main provides the voicecache CLI for inspecting and maintaining
// the on-device synthesized speech audio cache.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/voicecache/internal/audio"
	"github.com/dgnsrekt/voicecache/internal/cache"
	"github.com/dgnsrekt/voicecache/tts"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	dataDir    string
	byUsage    bool
	playAudio  bool

	rootCmd = &cobra.Command{
		Use:           "voicecache",
		Short:         "Inspect and maintain the synthesized speech audio cache",
		SilenceErrors: false,
		SilenceUsage:  true,
	}
)

// openManager loads the configuration and opens the cache manager.
func openManager() (*cache.Manager, error) {
	cfg, err := loadCacheConfig()
	if err != nil {
		return nil, err
	}
	manager, err := cache.NewManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to open cache: %w", err)
	}
	return manager, nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache item count, audio size and watermarks",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		manager, err := openManager()
		if err != nil {
			return err
		}
		defer manager.Close() //nolint:errcheck

		stats := manager.Stats()
		fmt.Printf("Items:      %d\n", stats.ItemCount)
		fmt.Printf("Audio size: %s\n", humanize.IBytes(uint64(stats.AudioBytes)))
		fmt.Printf("Watermarks: low %s, high %s\n",
			humanize.IBytes(uint64(stats.LowWatermark)),
			humanize.IBytes(uint64(stats.HighWatermark)))
		return nil
	},
}

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List voices that have audio in the cache",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		manager, err := openManager()
		if err != nil {
			return err
		}
		defer manager.Close() //nolint:errcheck

		for _, voice := range manager.AvailableVoices() {
			fmt.Println(voice)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cache items, oldest first (or least used with --by-usage)",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		manager, err := openManager()
		if err != nil {
			return err
		}
		defer manager.Close() //nolint:errcheck

		ids := manager.UUIDsByTimestamp()
		if byUsage {
			ids = manager.UUIDsByUsage()
		}
		for _, id := range ids {
			item, ok := manager.FindByUUID(id)
			if !ok {
				continue
			}
			fmt.Printf("%s  uses=%-4d size=%-10s %s\n",
				item.UUID,
				item.UsageCount,
				humanize.IBytes(uint64(item.AudioSize())),
				item.Utterance.Text)
		}
		return nil
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Evict the oldest items if the cache exceeds its high watermark",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		manager, err := openManager()
		if err != nil {
			return err
		}
		defer manager.Close() //nolint:errcheck

		before := manager.AudioFileSize()
		manager.ExpireCache()
		after := manager.AudioFileSize()
		fmt.Printf("Freed %s (%s in use)\n",
			humanize.IBytes(uint64(before-after)),
			humanize.IBytes(uint64(after)))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cache item and its audio files",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		manager, err := openManager()
		if err != nil {
			return err
		}
		defer manager.Close() //nolint:errcheck

		count := manager.ItemCount()
		if err := manager.Clear(); err != nil {
			return fmt.Errorf("unable to clear cache: %w", err)
		}
		fmt.Printf("Removed %d items\n", count)
		return nil
	},
}

var speakCmd = &cobra.Command{
	Use:   "speak [TEXT]",
	Short: "Run text through the mock synthesis pipeline and cache the audio",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		manager, err := openManager()
		if err != nil {
			return err
		}
		defer manager.Close() //nolint:errcheck

		engine := tts.NewMockEngine()
		synth := tts.NewSynthesizer(tts.MockFrontend{}, engine, manager)
		buffers, err := synth.Speak(args[0])
		if err != nil {
			return fmt.Errorf("synthesis failed: %w", err)
		}

		var total int
		for _, buf := range buffers {
			total += len(buf)
		}
		fmt.Printf("Synthesized %d buffers (%s) with %s\n",
			len(buffers), humanize.IBytes(uint64(total)), engine.Voice().Key())

		if playAudio {
			player, err := audio.NewPlayer(cache.Rate22kHz)
			if err != nil {
				return err
			}
			defer player.Close() //nolint:errcheck
			for _, buf := range buffers {
				if err := player.Play(buf); err != nil {
					return fmt.Errorf("playback failed: %w", err)
				}
			}
		}
		return nil
	},
}

func setupLog() {
	log.SetReportTimestamp(false)
	if viper.GetBool("debug") || os.Getenv("VOICECACHE_DEBUG") != "" {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	}
	if file := os.Getenv("VOICECACHE_LOGFILE"); file != "" {
		f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			fmt.Println("Could not open log file:", err)
			os.Exit(1)
		}
		log.SetOutput(f)
	}
}

func main() {
	setupLog()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()

	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "cache data directory")
	listCmd.Flags().BoolVar(&byUsage, "by-usage", false, "sort by usage count instead of age")
	speakCmd.Flags().BoolVar(&playAudio, "play", false, "play the audio on the default output device")

	_ = viper.BindPFlag("dir", rootCmd.PersistentFlags().Lookup("data-dir"))

	rootCmd.AddCommand(statsCmd, voicesCmd, listCmd, expireCmd, clearCmd, speakCmd, configCmd)
}
