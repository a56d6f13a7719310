package pkg

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/gin-gonic/gin"
)

// GetClientIP returns the client address as resolved by gin. Forwarding
// headers count only when the peer is one of the engine's trusted proxies.
func GetClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}

	return "unknown"
}

// FindProjectRoot walks up from this source file, then from the working
// directory, until it finds go.mod.
func FindProjectRoot() string {
	_, filename, _, _ := runtime.Caller(0)

	if root, ok := lookupGoMod(filepath.Dir(filename)); ok {
		return root
	}

	if wd, err := os.Getwd(); err == nil {
		if root, ok := lookupGoMod(wd); ok {
			return root
		}

		return wd
	}

	return "."
}

func lookupGoMod(dir string) (string, bool) {
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}

		dir = parent
	}
}
