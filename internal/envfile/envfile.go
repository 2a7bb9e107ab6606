package envfile

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"

	"piexed/internal/fsutil"
	"piexed/internal/models"
)

const (
	KeyJWTSecret           = "JWT_SECRET"
	KeyTogetherAPIKey      = "TOGETHER_API_KEY"
	KeyCryptoAPIKey        = "CRYPTO_API_KEY"
	KeySupportedCurrencies = "CRYPTO_SUPPORTED_CURRENCIES"

	defaultCurrencies = "BTC,ETH,USDT,USDC"
	secretBytes       = 32
)

// preservedKeys survive a re-emit when the existing file already has a
// non-empty value for them.
var preservedKeys = []string{KeyJWTSecret, KeyTogetherAPIKey, KeyCryptoAPIKey, KeySupportedCurrencies}

// Report says what Emit did. It never carries secret values.
type Report struct {
	Path            string
	Keys            int
	SecretGenerated bool
}

// Emit writes the resolved runtime configuration to path. The signing secret
// is generated only when the existing file has none; otherwise it is kept so
// previously issued tokens stay valid. The admin password is never written.
func Emit(path string, req models.InstallRequest) (Report, error) {
	existing, err := Read(path)
	if err != nil {
		return Report{}, err
	}

	values := Values(req)
	for _, key := range preservedKeys {
		if v := strings.TrimSpace(existing[key]); v != "" {
			values[key] = v
		}
	}

	report := Report{Path: path}
	if values[KeyJWTSecret] == "" {
		secret, err := NewSecret()
		if err != nil {
			return Report{}, err
		}
		values[KeyJWTSecret] = secret
		report.SecretGenerated = true
	}

	content, err := godotenv.Marshal(values)
	if err != nil {
		return Report{}, fmt.Errorf("marshal env: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, []byte(content+"\n"), 0o600); err != nil {
		return Report{}, fmt.Errorf("write %s: %w", path, err)
	}
	report.Keys = len(values)
	return report, nil
}

// Read returns the key/value pairs of an existing env file, or an empty map
// when the file does not exist.
func Read(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return values, nil
}

// Values renders the install request into env keys, without any value that
// must be preserved across runs.
func Values(req models.InstallRequest) map[string]string {
	var dbc models.DBConfig
	if req.DBConfig != nil {
		dbc = *req.DBConfig
	}
	var site models.SiteConfig
	if req.SiteConfig != nil {
		site = *req.SiteConfig
	}
	dbType := strings.ToLower(strings.TrimSpace(dbc.Type))
	if dbType == "" {
		dbType = "postgres"
	}
	appURL := strings.TrimRight(strings.TrimSpace(site.SiteURL), "/")

	return map[string]string{
		"DB_TYPE":             dbType,
		"DB_HOST":             dbc.Host,
		"DB_PORT":             dbc.Port.String(),
		"DB_USER":             dbc.User,
		"DB_PASSWORD":         dbc.Password,
		"DB_NAME":             dbc.Database,
		"DB_PATH":             dbc.Path,
		"NEXT_PUBLIC_APP_URL": appURL,
		"NEXT_PUBLIC_API_URL": appURL + "/api",
		KeyJWTSecret:           "",
		KeyTogetherAPIKey:      "",
		KeyCryptoAPIKey:        "",
		KeySupportedCurrencies: defaultCurrencies,
	}
}

// NewSecret returns a hex encoded 256-bit random value.
func NewSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
