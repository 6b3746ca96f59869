package publish

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/avery-whitehead/StreetMapsDownload/internal/config"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// ftpConn is the part of *ftp.ServerConn used for uploads.
type ftpConn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

// FTP stores documents in a directory on an FTP server.
type FTP struct {
	host     string
	dir      string
	user     string
	password string
	timeout  time.Duration
	dial     func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error)
}

// NewFTP parses cfg.URL of the form ftp://host[:port][/dir].
func NewFTP(cfg config.FTPConfig) (*FTP, error) {
	host, dir, err := parseFTPURL(cfg.URL)
	if err != nil {
		return nil, &model.ConfigurationError{Item: "publish.ftp.url", Err: err}
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	user, password := cfg.User, cfg.Password
	if user == "" {
		user, password = "anonymous", "anonymous"
	}
	return &FTP{host: host, dir: dir, user: user, password: password, timeout: timeout, dial: dialFTP}, nil
}

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	return ftp.Dial(addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
}

// parseFTPURL extracts host (with port) and directory from an FTP URL.
func parseFTPURL(rawURL string) (host, dir string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "publish: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("publish: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", eris.New("publish: ftp url has no host")
	}
	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	dir = path.Clean("/" + u.Path)
	if dir == "/" {
		dir = ""
	}
	return host, dir, nil
}

// Publish uploads localPath under its base name.
func (p *FTP) Publish(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", eris.Wrap(err, "publish: open document")
	}
	defer f.Close() //nolint:errcheck

	conn, err := p.dial(ctx, p.host, p.timeout)
	if err != nil {
		return "", &model.ExternalServiceError{Provider: "ftp", Op: "dial", Err: eris.Wrapf(err, "publish: dial %s", p.host)}
	}
	defer func() {
		if qerr := conn.Quit(); qerr != nil {
			zap.L().Debug("ftp quit failed", zap.Error(qerr))
		}
	}()

	if err := conn.Login(p.user, p.password); err != nil {
		return "", &model.ExternalServiceError{Provider: "ftp", Op: "login", Err: eris.Wrap(err, "publish: ftp login")}
	}
	if p.dir != "" {
		if err := conn.ChangeDir(p.dir); err != nil {
			return "", &model.ExternalServiceError{Provider: "ftp", Op: "cwd", Err: eris.Wrapf(err, "publish: change dir %s", p.dir)}
		}
	}
	name := filepath.Base(localPath)
	if err := conn.Stor(name, f); err != nil {
		return "", &model.ExternalServiceError{Provider: "ftp", Op: "stor", Err: eris.Wrapf(err, "publish: store %s", name)}
	}

	remote := (&url.URL{Scheme: "ftp", Host: p.host, Path: path.Join("/", p.dir, name)}).String()
	zap.L().Info("published document", zap.String("target", "ftp"), zap.String("url", remote))
	return remote, nil
}
