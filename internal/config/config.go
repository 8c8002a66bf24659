// Package config resolves the server's runtime configuration from CLI
// flags, optionally layered over a YAML file, following the same
// "file provides defaults, explicit flags override" shape as the
// teacher's config.<env>.json loader, substituting YAML for JSON since
// there is no env-specific filename convention here.
package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved set of server knobs, after flags have
// been parsed and any --config file has filled in whatever the
// command line did not set explicitly.
type Config struct {
	BindAddress          string   `yaml:"bindAddress"`
	ListenPort           int      `yaml:"listenPort"`
	VerificationPassword string   `yaml:"verificationPassword"`
	Journald             bool     `yaml:"journald"`
	UnixDomainSocket     bool     `yaml:"unixDomainSocket"`
	MongoURI             string   `yaml:"mongoURI"`
	MongoDatabase        string   `yaml:"mongoDatabase"`
	CORSOrigins          []string `yaml:"corsOrigins"`
	ArchiveDir           string   `yaml:"archiveDir"`
}

func defaults() Config {
	return Config{
		BindAddress: "127.0.0.1",
		ListenPort:  8088,
		ArchiveDir:  "archives",
	}
}

// fileConfig mirrors Config but with pointer/slice fields left nil when
// absent from the YAML document, so Load can tell "not set in file"
// apart from "set to the zero value in file".
type fileConfig struct {
	BindAddress          *string  `yaml:"bindAddress"`
	ListenPort           *int     `yaml:"listenPort"`
	VerificationPassword *string  `yaml:"verificationPassword"`
	Journald             *bool    `yaml:"journald"`
	UnixDomainSocket     *bool    `yaml:"unixDomainSocket"`
	MongoURI             *string  `yaml:"mongoURI"`
	MongoDatabase        *string  `yaml:"mongoDatabase"`
	CORSOrigins          []string `yaml:"corsOrigins"`
	ArchiveDir           *string  `yaml:"archiveDir"`
}

// Load parses args (typically os.Args[1:]) into a Config. Flags
// explicitly passed always win; a --config file fills in anything the
// command line left at its default.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("colosseum-server", flag.ContinueOnError)

	d := defaults()
	cfg := Config{}
	var corsOrigins stringList
	var configPath string

	fs.StringVar(&cfg.BindAddress, "bind-address", d.BindAddress, "address (or, with --unix-domain-socket, filesystem path) to listen on")
	fs.IntVar(&cfg.ListenPort, "listen-port", d.ListenPort, "TCP port to listen on (ignored with --unix-domain-socket)")
	fs.StringVar(&cfg.VerificationPassword, "verification-password", "", "administrator password that grants the verified flag to new games")
	fs.BoolVar(&cfg.Journald, "journald", false, "document that logs are consumed by the system journal (does not alter log format)")
	fs.BoolVar(&cfg.UnixDomainSocket, "unix-domain-socket", false, "treat --bind-address as a filesystem path for a unix socket listener")
	fs.StringVar(&cfg.MongoURI, "mongo-uri", "", "MongoDB connection URI; when set, archives persist to MongoDB instead of the filesystem")
	fs.StringVar(&cfg.MongoDatabase, "mongo-database", "colosseum", "MongoDB database name (only used with --mongo-uri)")
	fs.StringVar(&cfg.ArchiveDir, "archive-dir", d.ArchiveDir, "filesystem root for archived matches (only used without --mongo-uri)")
	fs.Var(&corsOrigins, "cors-origin", "origin allowed on /health and /stats (repeatable; defaults to permissive)")
	fs.StringVar(&configPath, "config", "", "optional YAML file providing defaults for any flag not passed explicitly")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.CORSOrigins = []string(corsOrigins)

	if configPath != "" {
		if err := layerFromFile(&cfg, fs, configPath); err != nil {
			return nil, err
		}
	}

	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &cfg, nil
}

// layerFromFile fills cfg fields with the YAML file's values, but only
// for flags the caller never set explicitly on the command line.
func layerFromFile(cfg *Config, fs *flag.FlagSet, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["bind-address"] && fc.BindAddress != nil {
		cfg.BindAddress = *fc.BindAddress
	}
	if !set["listen-port"] && fc.ListenPort != nil {
		cfg.ListenPort = *fc.ListenPort
	}
	if !set["verification-password"] && fc.VerificationPassword != nil {
		cfg.VerificationPassword = *fc.VerificationPassword
	}
	if !set["journald"] && fc.Journald != nil {
		cfg.Journald = *fc.Journald
	}
	if !set["unix-domain-socket"] && fc.UnixDomainSocket != nil {
		cfg.UnixDomainSocket = *fc.UnixDomainSocket
	}
	if !set["mongo-uri"] && fc.MongoURI != nil {
		cfg.MongoURI = *fc.MongoURI
	}
	if !set["mongo-database"] && fc.MongoDatabase != nil {
		cfg.MongoDatabase = *fc.MongoDatabase
	}
	if !set["archive-dir"] && fc.ArchiveDir != nil {
		cfg.ArchiveDir = *fc.ArchiveDir
	}
	if !set["cors-origin"] && len(fc.CORSOrigins) > 0 {
		cfg.CORSOrigins = fc.CORSOrigins
	}
	return nil
}

// stringList implements flag.Value to collect a repeatable flag.
type stringList []string

func (s *stringList) String() string {
	if s == nil {
		return ""
	}
	return fmt.Sprint([]string(*s))
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
