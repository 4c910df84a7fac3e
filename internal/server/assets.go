package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Assets serves the static files under /images/.
type Assets interface {
	http.Handler
	// Backend names where the files come from, for health output.
	Backend() string
	// Check reports whether the backing store is reachable.
	Check(ctx context.Context) error
}

// DirAssets serves files from a local directory; /images/x is read from
// <dir>/images/x.
type DirAssets struct {
	dir string
	fs  http.Handler
}

func NewDirAssets(dir string) *DirAssets {
	return &DirAssets{dir: dir, fs: http.FileServer(http.Dir(dir))}
}

func (a *DirAssets) ServeHTTP(w http.ResponseWriter, r *http.Request) { a.fs.ServeHTTP(w, r) }

func (a *DirAssets) Backend() string { return "dir" }

func (a *DirAssets) Check(ctx context.Context) error {
	fi, err := os.Stat(a.dir)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", a.dir)
	}
	return nil
}

// MinioAssets serves the same paths as object keys from a bucket.
type MinioAssets struct {
	client *minio.Client
	bucket string
}

func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	// Accept either "minio:9000" or "http://minio:9000" / "https://minio:9000".
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		secure = (u.Scheme == "https")
		return u.Host, secure, nil
	}

	// No scheme provided, treat as host:port (insecure by default for local MinIO).
	return raw, false, nil
}

// NewMinioAssets connects to the object store and checks the bucket exists.
func NewMinioAssets(ctx context.Context, rawEndpoint, accessKey, secretKey, bucket string) (*MinioAssets, error) {
	endpoint, secure, err := normaliseEndpoint(rawEndpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	a := &MinioAssets{client: client, bucket: bucket}
	if err := a.Check(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// objectKey maps a request path to a key under images/, rejecting anything else.
func objectKey(urlPath string) (string, bool) {
	key := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if !strings.HasPrefix(key, "images/") || key == "images/" {
		return "", false
	}
	return key, true
}

func (a *MinioAssets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, ok := objectKey(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	obj, err := a.client.GetObject(r.Context(), a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		Error("asset get", map[string]interface{}{"key": key}, err)
		http.Error(w, "storage error", http.StatusBadGateway)
		return
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			http.NotFound(w, r)
			return
		}
		Error("asset stat", map[string]interface{}{"key": key}, err)
		http.Error(w, "storage error", http.StatusBadGateway)
		return
	}

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeContent(w, r, path.Base(key), info.LastModified, obj)
}

func (a *MinioAssets) Backend() string { return "minio" }

func (a *MinioAssets) Check(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("minio bucket does not exist: %s", a.bucket)
	}
	return nil
}
