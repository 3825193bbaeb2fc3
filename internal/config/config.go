// Package config carga la configuración del broker desde YAML con overrides
// por variables de entorno (CROSSJOHN_*).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/crossjohn/internal/validation"
)

// ProviderConfig es la configuración cruda de un método de credenciales.
// Kind decide qué provider se construye; el resto de los campos aplican
// según el protocolo.
type ProviderConfig struct {
	// oauth2 | oidc | saml | resttoken | local
	Kind string `yaml:"kind"`

	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`

	// oauth2
	AuthURL     string `yaml:"auth_url"`
	TokenURL    string `yaml:"token_url"`
	UserinfoURL string `yaml:"userinfo_url"`

	// oidc
	IssuerURL string `yaml:"issuer_url"`

	// saml
	IdPSSOURL      string `yaml:"idp_sso_url"`
	IdPIssuer      string `yaml:"idp_issuer"`
	SPIssuer       string `yaml:"sp_issuer"`
	AudienceURI    string `yaml:"audience_uri"`
	CertificatePEM string `yaml:"certificate_pem"`
	NameIDFormat   string `yaml:"nameid_format"`

	// resttoken
	VerifyURL   string `yaml:"verify_url"`
	TokenParam  string `yaml:"token_param"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	BearerToken string `yaml:"bearer_token"`

	// derivación subject -> identificador
	SubjectField     string `yaml:"subject_field"`
	SubjectClaim     string `yaml:"subject_claim"`
	SubjectAttribute string `yaml:"subject_attribute"`
	HashSubject      bool   `yaml:"hash_subject"`

	// endpoints opcionales
	LoginURL    string `yaml:"login_url"`
	LogoutURL   string `yaml:"logout_url"`
	SignupURL   string `yaml:"signup_url"`
	CallbackURL string `yaml:"callback_url"`
}

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		// memory | redis | postgres
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Driver string `yaml:"driver"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		DefaultTTL time.Duration `yaml:"default_ttl"`
	} `yaml:"cache"`

	JWT struct {
		Issuer string `yaml:"issuer"`
		KeyID  string `yaml:"key_id"`
		// SigningSeed es la seed Ed25519 en base64url. Vacía genera una
		// clave efímera (solo dev).
		SigningSeed string        `yaml:"signing_seed"`
		AccessTTL   time.Duration `yaml:"access_ttl"`
		StateTTL    time.Duration `yaml:"state_ttl"`
	} `yaml:"jwt"`

	Rate struct {
		Enabled bool          `yaml:"enabled"`
		Limit   int           `yaml:"limit"`
		Window  time.Duration `yaml:"window"`
	} `yaml:"rate"`

	Directory struct {
		BaseURL     string        `yaml:"base_url"`
		BearerToken string        `yaml:"bearer_token"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"directory"`

	// Providers mapea nombre de método -> configuración.
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// Load lee y parsea el archivo, aplica defaults y overrides de entorno.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.DefaultTTL <= 0 {
		c.Cache.DefaultTTL = 10 * time.Minute
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "crossjohn"
	}
	if c.JWT.AccessTTL <= 0 {
		c.JWT.AccessTTL = time.Hour
	}
	if c.JWT.StateTTL <= 0 {
		c.JWT.StateTTL = 10 * time.Minute
	}
	if c.Rate.Limit <= 0 {
		c.Rate.Limit = 30
	}
	if c.Rate.Window <= 0 {
		c.Rate.Window = time.Minute
	}

	c.applyEnvOverrides()
	return &c, nil
}

func getEnvStr(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

func getEnvInt(key string) (int, bool) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("CROSSJOHN_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("CROSSJOHN_STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("CROSSJOHN_STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("CROSSJOHN_REDIS_ADDR"); ok {
		c.Storage.Redis.Addr = v
		if c.Cache.Redis.Addr == "" {
			c.Cache.Redis.Addr = v
		}
	}
	if v, ok := getEnvStr("CROSSJOHN_REDIS_PASSWORD"); ok {
		c.Storage.Redis.Password = v
		c.Cache.Redis.Password = v
	}
	if n, ok := getEnvInt("CROSSJOHN_REDIS_DB"); ok {
		c.Storage.Redis.DB = n
	}
	if v, ok := getEnvStr("CROSSJOHN_JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("CROSSJOHN_JWT_SIGNING_SEED"); ok {
		c.JWT.SigningSeed = v
	}
	if v, ok := getEnvStr("CROSSJOHN_DIRECTORY_URL"); ok {
		c.Directory.BaseURL = v
	}
	if v, ok := getEnvStr("CROSSJOHN_DIRECTORY_TOKEN"); ok {
		c.Directory.BearerToken = v
	}
}

// Validate verifica invariantes que no pueden esperar al primer request.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("config: storage.redis.addr requerido con driver redis")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage.dsn requerido con driver postgres")
		}
	default:
		return fmt.Errorf("config: storage.driver desconocido %q", c.Storage.Driver)
	}

	for name, p := range c.Providers {
		if !validation.ValidMethodName(name) {
			return fmt.Errorf("config: nombre de método inválido %q", name)
		}
		switch p.Kind {
		case "oauth2", "oidc", "saml", "resttoken", "local":
		case "":
			return fmt.Errorf("config: provider %q sin kind", name)
		default:
			return fmt.Errorf("config: provider %q con kind desconocido %q", name, p.Kind)
		}
	}
	return nil
}
