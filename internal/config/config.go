package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/airsentinel/airsentinel/internal/weather"
)

var validate = validator.New()

// AppConfig is the full runtime configuration: secrets and tunables from the
// environment, the location registry and source policy from a YAML file.
type AppConfig struct {
	OpenWeatherAPIKey string
	WeatherAPIKey     string
	CPCBAPIKey        string

	// FetchInterval controls how often we collect data for each location.
	FetchInterval time.Duration

	// FetchTimeout bounds each outbound adapter call.
	FetchTimeout time.Duration

	// In-memory store retention.
	StoreMaxHistory int
	StoreMaxAge     time.Duration

	CacheTTL           time.Duration
	CacheSweepInterval time.Duration

	// Locations to track.
	Locations []weather.Location

	// SourcePriority is the consensus fallback order; adding or removing a
	// provider is a config change, not a code change.
	SourcePriority []string

	// IMDStations maps location IDs to IMD station IDs.
	IMDStations map[string]string

	// MySQL is optional; when Host is empty the in-memory store is used.
	MySQL struct {
		Host     string
		Port     string
		User     string
		Password string
		DBName   string
	}

	// Influx is optional; when URL is empty no export sink is attached.
	Influx struct {
		URL    string
		Token  string
		Org    string
		Bucket string
	}

	Port string
}

// sourcesFile is the YAML shape of the location registry and source policy.
type sourcesFile struct {
	Locations []weather.Location `yaml:"locations"`
	Sources   struct {
		Priority    []string          `yaml:"priority"`
		IMDStations map[string]string `yaml:"imd_stations"`
	} `yaml:"sources"`
}

// Load reads configuration from the environment and the YAML registry with
// sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.CPCBAPIKey = os.Getenv("CPCB_API_KEY")

	var err error
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "15m"); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getenvDuration("FETCH_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	// Retention defaults: unlimited count, 90 days of age.
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 0)
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "2160h"); err != nil {
		return nil, err
	}

	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", "10m"); err != nil {
		return nil, err
	}
	if cfg.CacheSweepInterval, err = getenvDuration("CACHE_SWEEP_INTERVAL", "5m"); err != nil {
		return nil, err
	}

	cfg.MySQL.Host = os.Getenv("MYSQL_HOST")
	cfg.MySQL.Port = getenvDefault("MYSQL_PORT", "3306")
	cfg.MySQL.User = os.Getenv("MYSQL_USER")
	cfg.MySQL.Password = os.Getenv("MYSQL_PASSWORD")
	cfg.MySQL.DBName = getenvDefault("MYSQL_DATABASE", "airsentinel")

	cfg.Influx.URL = os.Getenv("INFLUX_URL")
	cfg.Influx.Token = os.Getenv("INFLUX_TOKEN")
	cfg.Influx.Org = getenvDefault("INFLUX_ORG", "airsentinel")
	cfg.Influx.Bucket = getenvDefault("INFLUX_BUCKET", "readings")

	cfg.Port = getenvDefault("PORT", "8080")

	if err := cfg.loadRegistry(getenvDefault("CONFIG_FILE", "config.yaml")); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadRegistry reads locations and source policy from the YAML file; a
// missing file falls back to built-in defaults so a dev instance starts
// without any setup.
func (c *AppConfig) loadRegistry(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("INFO: %s not found; using built-in location registry", path)
			c.Locations = defaultLocations
			c.SourcePriority = weather.DefaultSourcePriority
			c.IMDStations = defaultIMDStations
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if len(file.Locations) == 0 {
		return fmt.Errorf("%s: at least one location is required", path)
	}
	for _, loc := range file.Locations {
		if err := validate.Struct(loc); err != nil {
			return fmt.Errorf("%s: invalid location %q: %w", path, loc.ID, err)
		}
	}
	c.Locations = file.Locations

	c.SourcePriority = file.Sources.Priority
	if len(c.SourcePriority) == 0 {
		c.SourcePriority = weather.DefaultSourcePriority
	}

	c.IMDStations = file.Sources.IMDStations
	if c.IMDStations == nil {
		c.IMDStations = map[string]string{}
	}

	return nil
}

// defaultLocations covers the major metros so a fresh checkout collects
// something immediately.
var defaultLocations = []weather.Location{
	{ID: "delhi", Name: "Delhi", Latitude: 28.6139, Longitude: 77.2090},
	{ID: "mumbai", Name: "Mumbai", Latitude: 19.0760, Longitude: 72.8777},
	{ID: "kolkata", Name: "Kolkata", Latitude: 22.5726, Longitude: 88.3639},
	{ID: "chennai", Name: "Chennai", Latitude: 13.0827, Longitude: 80.2707},
	{ID: "bengaluru", Name: "Bengaluru", Latitude: 12.9716, Longitude: 77.5946},
	{ID: "hyderabad", Name: "Hyderabad", Latitude: 17.3850, Longitude: 78.4867},
}

var defaultIMDStations = map[string]string{
	"delhi":     "42182",
	"mumbai":    "43003",
	"kolkata":   "42807",
	"chennai":   "43279",
	"bengaluru": "43295",
	"hyderabad": "43128",
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
