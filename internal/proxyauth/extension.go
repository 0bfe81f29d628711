// File: internal/proxyauth/extension.go
// Description: Builds the per-session Chrome extension that answers proxy
// authentication challenges, so no session ever sees an interactive prompt.

package proxyauth

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Credentials is the immutable proxy credential tuple shared (read-only)
// across every session in a run.
type Credentials struct {
	Host     string
	Port     int
	Username string
	Password string
	Scheme   string
}

// Artifact is one packaged proxy-auth unit. It is owned exclusively by the
// browser session it was built for and is removed when that session ends.
type Artifact struct {
	// ZipPath is the packed extension archive.
	ZipPath string
	// Dir is the unpacked extension directory. Chromium only accepts
	// unpacked extensions through --load-extension, so both forms are
	// written side by side and share one lifetime.
	Dir string
}

const manifestJSON = `{
    "version": "1.0.0",
    "manifest_version": 2,
    "name": "Proxy Auth",
    "permissions": [
        "proxy",
        "tabs",
        "unlimitedStorage",
        "storage",
        "webRequest",
        "webRequestBlocking"
    ],
    "background": {
        "scripts": ["background.js"]
    },
    "minimum_chrome_version": "22.0.0"
}`

const backgroundJSTemplate = `var config = {
    mode: "fixed_servers",
    rules: {
        singleProxy: {
            scheme: "%s",
            host: "%s",
            port: %d
        },
        bypassList: ["localhost"]
    }
};

chrome.proxy.settings.set({value: config, scope: "regular"}, function() {});

function callbackFn(details) {
    return {
        authCredentials: {
            username: "%s",
            password: "%s"
        }
    };
}

chrome.webRequest.onAuthRequired.addListener(
    callbackFn,
    {urls: ["<all_urls>"]},
    ['blocking']
);
`

// Build writes a fresh proxy-auth extension under baseDir. Each call yields a
// distinct artifact identity (nanosecond suffix) so sessions created in quick
// succession never collide.
func Build(creds Credentials, baseDir string) (*Artifact, error) {
	if creds.Host == "" || creds.Port <= 0 {
		return nil, fmt.Errorf("proxy credentials are incomplete: host=%q port=%d", creds.Host, creds.Port)
	}
	scheme := creds.Scheme
	if scheme == "" {
		scheme = "http"
	}

	name := fmt.Sprintf("proxy_auth_%d", time.Now().UnixNano())
	a := &Artifact{
		ZipPath: filepath.Join(baseDir, name+".zip"),
		Dir:     filepath.Join(baseDir, name),
	}

	background := fmt.Sprintf(backgroundJSTemplate,
		scheme, creds.Host, creds.Port, creds.Username, creds.Password)

	if err := writeUnpacked(a.Dir, background); err != nil {
		a.cleanupPartial()
		return nil, err
	}
	if err := writeZip(a.ZipPath, background); err != nil {
		a.cleanupPartial()
		return nil, err
	}
	return a, nil
}

// Remove deletes both forms of the artifact. Removal is best-effort: a
// leftover file is logged and ignored, never escalated.
func (a *Artifact) Remove(logger *zap.Logger) {
	if a == nil {
		return
	}
	if err := os.Remove(a.ZipPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove proxy auth archive",
			zap.String("path", a.ZipPath), zap.Error(err))
	}
	if err := os.RemoveAll(a.Dir); err != nil {
		logger.Warn("Failed to remove proxy auth extension dir",
			zap.String("path", a.Dir), zap.Error(err))
	}
}

// cleanupPartial silently drops whatever a failed Build managed to write.
func (a *Artifact) cleanupPartial() {
	_ = os.Remove(a.ZipPath)
	_ = os.RemoveAll(a.Dir)
}

func writeUnpacked(dir, background string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create extension dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifestJSON), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "background.js"), []byte(background), 0o644); err != nil {
		return fmt.Errorf("failed to write background.js: %w", err)
	}
	return nil
}

func writeZip(path, background string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create extension archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range map[string]string{
		"manifest.json": manifestJSON,
		"background.js": background,
	} {
		w, err := zw.Create(name)
		if err != nil {
			zw.Close()
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			zw.Close()
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize extension archive: %w", err)
	}
	return nil
}
