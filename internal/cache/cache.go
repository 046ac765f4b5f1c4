// Package cache implements a very trivial filesystem cache for raw logs.tf responses.
package cache

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path"
	"strconv"
	"time"
)

const (
	// How long until a entry is considered stale.
	maxCacheAge = time.Hour * 24 * 90
)

var (
	ErrCacheMiss = errors.New("cache miss error")
	errCacheSet  = errors.New("cache set error")
	errCacheDir  = errors.New("cache dir error")
)

type Cache interface {
	Get(logID int64, variant ItemVariant) ([]byte, error)
	Set(logID int64, variant ItemVariant, content []byte) error
}

type ItemVariant int

const (
	CacheLogDetail ItemVariant = iota
)

// Filesystem implements the default filesystem based Cache interface.
type Filesystem struct {
	cacheDir string
	maxAge   time.Duration
}

func New(cachePath string) (Filesystem, error) {
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		slog.Error("Failed to make cache root", slog.String("error", err.Error()),
			slog.String("path", cachePath))

		return Filesystem{}, errors.Join(err, errCacheDir)
	}

	return Filesystem{cacheDir: cachePath, maxAge: maxCacheAge}, nil
}

func (c Filesystem) Set(logID int64, variant ItemVariant, content []byte) error {
	file, errFile := os.Create(c.path(logID, variant))
	if errFile != nil {
		return errors.Join(errFile, errCacheSet)
	}

	defer func(file io.Closer) {
		if err := file.Close(); err != nil {
			slog.Error("Failed to close cache file", slog.String("error", err.Error()))
		}
	}(file)

	if _, err := file.Write(content); err != nil {
		return errors.Join(err, errCacheSet)
	}

	return nil
}

func (c Filesystem) Get(logID int64, variant ItemVariant) ([]byte, error) {
	fullPath := c.path(logID, variant)

	file, errFile := os.Open(fullPath)
	if errFile != nil {
		return nil, errors.Join(errFile, ErrCacheMiss)
	}

	stat, errStat := file.Stat()
	if errStat != nil {
		if err := file.Close(); err != nil {
			return nil, errors.Join(errStat, err, ErrCacheMiss)
		}

		return nil, errors.Join(errStat, ErrCacheMiss)
	}

	if time.Since(stat.ModTime()) > c.maxAge {
		if err := file.Close(); err != nil {
			return nil, errors.Join(err, ErrCacheMiss)
		}

		if err := os.Remove(fullPath); err != nil {
			return nil, errors.Join(err, ErrCacheMiss)
		}

		return nil, ErrCacheMiss
	}

	body, errRead := io.ReadAll(file)
	if errRead != nil {
		if err := file.Close(); err != nil {
			return nil, errors.Join(err, ErrCacheMiss)
		}

		return nil, errors.Join(errRead, ErrCacheMiss)
	}

	if err := file.Close(); err != nil {
		return nil, errors.Join(err, ErrCacheMiss)
	}

	return body, nil
}

func (c Filesystem) path(logID int64, variant ItemVariant) string {
	return path.Join(c.cacheDir, cacheName(logID, variant))
}

func cacheName(logID int64, variant ItemVariant) string {
	return strconv.FormatInt(logID, 10) + "_" + strconv.Itoa(int(variant))
}
