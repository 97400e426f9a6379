package token

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

const (
	configFileName = "linkfeed"
	configFileType = "yml"
)

// Context is the persisted session.
type Context struct {
	Token string `mapstructure:"token" json:"token"`
}

var _ Store = (*FileStore)(nil)

// FileStore persists the token in <dir>/linkfeed.yml under the context key.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// DefaultDir is ~/.config/linkfeed, or the working directory's .linkfeed
// when there is no home.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "linkfeed")
	}
	return ".linkfeed"
}

func (f *FileStore) Path() string {
	return filepath.Join(f.dir, configFileName+"."+configFileType)
}

func (f *FileStore) viper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(f.Path())
	v.SetConfigType(configFileType)
	return v
}

func (f *FileStore) read() (Context, error) {
	var ctx Context

	v := f.viper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return ctx, nil
		}
		return ctx, err
	}

	if err := v.UnmarshalKey("context", &ctx); err != nil {
		return ctx, err
	}
	return ctx, nil
}

func (f *FileStore) Token() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx, err := f.read()
	return ctx.Token, err
}

func (f *FileStore) SetToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return err
	}

	v := f.viper()
	v.Set("context", map[string]any{"token": token})
	if err := v.WriteConfigAs(f.Path()); err != nil {
		return err
	}

	return os.Chmod(f.Path(), 0o600)
}

func (f *FileStore) Clear() error {
	return f.SetToken("")
}
