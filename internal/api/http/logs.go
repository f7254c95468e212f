package http

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	defaultLogLines = 200
	maxLogLines     = 2000

	// maxLogRead bounds how much of the launcher log is read per request.
	maxLogRead = 1 << 20
)

// TailLog returns the last N lines of the shared browser launcher log,
// which is where Firefox stdout and stderr land. Crash triage over VNC
// is painful; this endpoint puts the output one curl away.
func (h *Handlers) TailLog(c *gin.Context) {
	lines := defaultLogLines
	if raw := c.Query("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lines must be a positive integer"})
			return
		}
		lines = parsed
		if lines > maxLogLines {
			lines = maxLogLines
		}
	}

	path := h.layout.LauncherLog()
	tail, err := tailFile(path, lines)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, gin.H{"path": path, "lines": []string{}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"path": path, "lines": tail})
}

// tailFile reads at most maxLogRead bytes from the end of path and
// returns the last n lines.
func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	offset := int64(0)
	size := info.Size()
	if size > maxLogRead {
		offset = size - maxLogRead
	}

	buf := make([]byte, size-offset)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, err
	}

	all := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	if offset > 0 && len(all) > 0 {
		all = all[1:] // first line is likely truncated
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}
