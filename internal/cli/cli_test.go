package cli

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filetransfer/internal/modes"
	"filetransfer/pkg/client"
	"filetransfer/pkg/config"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFormatFileList(t *testing.T) {
	var buf bytes.Buffer
	formatFileList(&buf, &client.Listing{
		Files: []client.FileInfo{
			{Name: "zeta.bin", Size: 2048, ModTime: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
			{Name: "a-much-longer-file-name.txt", Size: 10},
		},
		TotalSize: 2058,
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[2], "zeta.bin")
	assert.Contains(t, lines[2], "2.0 kB")
	assert.Contains(t, lines[3], "a-much-longer-file-name.txt")
	assert.Equal(t, "2 files, 2.1 kB total", lines[len(lines)-1])
}

func TestProgressPrinterAlwaysPrintsCompletion(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)

	p("a.txt", 10, 100)
	p("a.txt", 50, 100) // throttled
	p("a.txt", 100, 100)

	out := buf.String()
	assert.Contains(t, out, "a.txt: 10 B / 100 B (10%)")
	assert.NotContains(t, out, "(50%)")
	assert.Contains(t, out, "(100%)")
}

func TestVersion(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "filetransfer dev")
}

func TestClientCommandsAgainstServer(t *testing.T) {
	serverCfg := config.DefaultConfig
	serverCfg.Storage.Dir = t.TempDir()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- modes.Serve(ctx, &serverCfg, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	work := t.TempDir()
	src := filepath.Join(work, "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("meeting at noon"), 0644))
	url := "http://" + ln.Addr().String()

	out, err := runCommand(t, "--server", url, "upload", "--quiet", src)
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "blake3:")

	out, err = runCommand(t, "--server", url, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "1 files")

	target := filepath.Join(work, "copy.txt")
	out, err = runCommand(t, "--server", url, "download", "notes.txt", "--output", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved "+target)
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "meeting at noon", string(got))

	_, err = runCommand(t, "--server", url, "download", "missing.txt", "--output", filepath.Join(work, "missing.txt"))
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(work, "missing.txt"))
	assert.True(t, os.IsNotExist(statErr))
}
