package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout time.Duration // dial and per-command timeout (default 30s)
}

// FTPFetcher downloads single files over FTP, one connection per download.
// Census mirrors (ftp2.census.gov) still serve TIGER archives this way.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher returns an FTPFetcher with defaults applied to opts.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPFetcher{opts: opts}
}

// ftpTarget is a parsed ftp:// URL.
type ftpTarget struct {
	host, path     string
	user, password string
}

// parseFTPURL splits an ftp:// URL. The port defaults to 21 and the login
// to anonymous.
func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.Errorf("ftp: no file path in %q", rawURL)
	}

	t := ftpTarget{host: u.Host, path: u.Path, user: "anonymous", password: "anonymous@"}
	if u.Port() == "" {
		t.host = net.JoinHostPort(u.Hostname(), "21")
	}
	if u.User != nil {
		t.user = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// retrieval is an in-flight RETR; closing it ends the transfer and the
// session.
type retrieval struct {
	*ftp.Response
	conn *ftp.ServerConn
}

func (r *retrieval) Close() error {
	return errors.Join(
		eris.Wrap(r.Response.Close(), "ftp: close transfer"),
		eris.Wrap(r.conn.Quit(), "ftp: quit"),
	)
}

// Download logs in and starts retrieving the file. The caller must close the
// returned reader to release the connection.
func (f *FTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	t, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("ftp: retrieving", zap.String("host", t.host), zap.String("path", t.path))

	conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", t.host)
	}
	if err := conn.Login(t.user, t.password); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: login as %s", t.user)
	}
	resp, err := conn.Retr(t.path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: retrieve %s", t.path)
	}
	return &retrieval{Response: resp, conn: conn}, nil
}

// DownloadToFile retrieves rawURL into path atomically.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	rc, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck

	return copyToFile(path, rc)
}
