package main

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/amaci-witness/config"
	"github.com/vocdoni/amaci-witness/internal"
	"github.com/vocdoni/amaci-witness/log"
	"github.com/vocdoni/amaci-witness/storage"
	"github.com/vocdoni/amaci-witness/vote"
)

const (
	defaultUsers     = "1:1,2:2"
	defaultPrivKey   = "1"
	defaultSalt      = "1"
	defaultVotes     = "0:11,1:113,3:7"
	defaultOutput    = "input.json"
	defaultFormat    = "json"
	defaultLogLevel  = "info"
	defaultLogOutput = "stderr"
	envPrefix        = "AMACI"
)

// Version is the build version, set at build time with -ldflags
var Version = internal.Version

// Config holds the application configuration
type Config struct {
	Election ElectionConfig
	Voter    VoterConfig
	Output   OutputConfig
	Log      LogConfig
}

// ElectionConfig holds the public parameters of the election.
type ElectionConfig struct {
	UserTreeDepth       int      `mapstructure:"userdepth"`
	VoteOptionTreeDepth int      `mapstructure:"votedepth"`
	VoiceCredits        uint64   `mapstructure:"credits"`
	MaxVoteOptions      uint64   `mapstructure:"maxoptions"`
	CoordSeed           string   `mapstructure:"coordseed"`
	CoordPubKey         []string `mapstructure:"coordpubkey"`
	Users               string   `mapstructure:"users"`
	Roster              string   `mapstructure:"roster"`
}

// VoterConfig holds the private inputs of the voter.
type VoterConfig struct {
	PrivKey string `mapstructure:"privkey"`
	Salt    string `mapstructure:"salt"`
	Votes   string `mapstructure:"votes"`
	EncSeed string `mapstructure:"encseed"`
}

// OutputConfig holds where and how the witness is written.
type OutputConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Output      string `mapstructure:"output"`
	ErrorOutput string `mapstructure:"erroroutput"`
}

// loadConfig loads configuration from flags, environment variables, an
// optional config file and defaults, in that order of precedence.
func loadConfig(args []string) (*Config, error) {
	v := viper.New()

	v.SetDefault("election.userdepth", config.DefaultUserTreeDepth)
	v.SetDefault("election.votedepth", config.DefaultVoteOptionTreeDepth)
	v.SetDefault("election.credits", config.DefaultVoiceCreditPerUser)
	v.SetDefault("election.maxoptions", config.DefaultMaxVoteOptions)
	v.SetDefault("election.coordseed", fmt.Sprint(config.DefaultCoordinatorSeed))
	v.SetDefault("election.coordpubkey", []string{})
	v.SetDefault("election.users", defaultUsers)
	v.SetDefault("voter.privkey", defaultPrivKey)
	v.SetDefault("voter.salt", defaultSalt)
	v.SetDefault("voter.votes", defaultVotes)
	v.SetDefault("voter.encseed", fmt.Sprint(config.DefaultEncryptionSeed))
	v.SetDefault("output.path", defaultOutput)
	v.SetDefault("output.format", defaultFormat)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("log.erroroutput", "")

	fs := flag.NewFlagSet("amaci-inputs", flag.ContinueOnError)
	configFile := fs.StringP("config", "c", "", "optional configuration file (yaml, json or toml)")
	fs.Int("election.userdepth", config.DefaultUserTreeDepth, "depth of the user tree")
	fs.Int("election.votedepth", config.DefaultVoteOptionTreeDepth, "depth of the vote option tree")
	fs.Uint64("election.credits", config.DefaultVoiceCreditPerUser, "voice credits per user")
	fs.Uint64("election.maxoptions", config.DefaultMaxVoteOptions, "maximum number of vote options")
	fs.String("election.coordseed", fmt.Sprint(config.DefaultCoordinatorSeed), "seed of the coordinator key pair")
	fs.StringSlice("election.coordpubkey", []string{}, "coordinator public key x,y (overrides the coordinator seed)")
	fs.StringP("election.users", "u", defaultUsers, "registered users as privkey:salt pairs, comma-separated")
	fs.StringP("election.roster", "r", "", "JSON file with the user commitments (overrides the users)")
	fs.StringP("voter.privkey", "k", defaultPrivKey, "private key of the voter")
	fs.StringP("voter.salt", "s", defaultSalt, "salt of the voter")
	fs.StringP("voter.votes", "v", defaultVotes, "votes as option:value pairs, comma-separated")
	fs.StringP("voter.encseed", "e", fmt.Sprint(config.DefaultEncryptionSeed), "seed of the ephemeral encryption key pair")
	fs.StringP("output.path", "o", defaultOutput, "witness output file, - for stdout")
	fs.StringP("output.format", "f", defaultFormat, "witness format (json, cbor)")
	fs.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.String("log.output", defaultLogOutput, "log output (stdout, stderr or filepath)")
	fs.String("log.erroroutput", "", "optional copy of warnings and errors (stderr or filepath)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "amaci-inputs v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: amaci-inputs [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, AMACI_VOTER_PRIVKEY or AMACI_ELECTION_USERDEPTH\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Generate the witness of the default test run\n")
		fmt.Fprintf(os.Stderr, "  amaci-inputs\n\n")
		fmt.Fprintf(os.Stderr, "  # Vote as the second user and print the witness\n")
		fmt.Fprintf(os.Stderr, "  amaci-inputs --voter.privkey=2 --voter.salt=2 --voter.votes=2:50 -o -\n")
	}

	fs.SortFlags = false
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if !log.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	if cfg.Election.UserTreeDepth < 0 || cfg.Election.VoteOptionTreeDepth < 0 {
		return fmt.Errorf("tree depths must not be negative")
	}
	if cfg.Election.VoteOptionTreeDepth > config.MaxVoteOptionTreeDepth {
		return fmt.Errorf("vote option tree depth must not exceed %d", config.MaxVoteOptionTreeDepth)
	}
	if len(cfg.Election.CoordPubKey) != 0 && len(cfg.Election.CoordPubKey) != 2 {
		return fmt.Errorf("coordinator public key needs two coordinates, got %d", len(cfg.Election.CoordPubKey))
	}
	if len(cfg.Election.CoordPubKey) == 0 && cfg.Election.CoordSeed == "" {
		return fmt.Errorf("coordinator seed or public key is required (use --election.coordseed or --election.coordpubkey)")
	}
	if cfg.Election.Roster == "" && cfg.Election.Users == "" {
		return fmt.Errorf("users or roster file are required (use --election.users or --election.roster)")
	}
	if cfg.Voter.PrivKey == "" || cfg.Voter.Salt == "" {
		return fmt.Errorf("voter private key and salt are required (use --voter.privkey and --voter.salt)")
	}
	if _, err := vote.ParseEntries(cfg.Voter.Votes); err != nil {
		return fmt.Errorf("invalid votes: %w", err)
	}
	if _, err := storage.ParseEncoding(cfg.Output.Format); err != nil {
		return err
	}
	if cfg.Output.Path == "" {
		return fmt.Errorf("output path is required")
	}
	return nil
}

// parseBigInt parses a decimal or 0x prefixed hexadecimal integer.
func parseBigInt(s string) (*big.Int, error) {
	x, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return x, nil
}
