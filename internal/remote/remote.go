// Package remote drives rsync and ssh against a peer node through the
// process runner, so the transfer orchestrator never builds argument
// vectors itself.
package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/rowjay/cassandra-maint-utility/internal/runner"
)

// Endpoint identifies the remote node.
type Endpoint struct {
	User string
	Host string
	Port int
}

func (e Endpoint) addr() string {
	return fmt.Sprintf("%s@%s", e.User, e.Host)
}

func (e Endpoint) port() int {
	if e.Port == 0 {
		return 22
	}
	return e.Port
}

// Client executes remote operations over ssh/rsync.
type Client struct {
	Runner   runner.Runner
	Endpoint Endpoint
}

func (c *Client) sshArgs(cmd ...string) []string {
	args := []string{
		"-o", "BatchMode=yes",
		"-p", fmt.Sprintf("%d", c.Endpoint.port()),
		c.Endpoint.addr(),
		"--",
	}
	return append(args, cmd...)
}

// Run executes a command on the remote host.
func (c *Client) Run(ctx context.Context, cmd ...string) error {
	return c.Runner.Run(ctx, "ssh", c.sshArgs(cmd...)...)
}

// Output executes a command on the remote host and returns its stdout.
func (c *Client) Output(ctx context.Context, cmd ...string) ([]byte, error) {
	return c.Runner.Output(ctx, "ssh", c.sshArgs(cmd...)...)
}

// ListDir returns the entry names of a remote directory.
func (c *Client) ListDir(ctx context.Context, dir string) ([]string, error) {
	out, err := c.Output(ctx, "ls", "-1", dir)
	if err != nil {
		return nil, fmt.Errorf("list remote dir %s: %w", dir, err)
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// Mkdir creates a remote directory tree.
func (c *Client) Mkdir(ctx context.Context, dir string) error {
	return c.Run(ctx, "mkdir", "-p", dir)
}

// Remove deletes remote paths. recursive selects rm -rf over rm -f.
func (c *Client) Remove(ctx context.Context, recursive bool, paths ...string) error {
	flag := "-f"
	if recursive {
		flag = "-rf"
	}
	return c.Run(ctx, append([]string{"rm", flag, "--"}, paths...)...)
}

// Rsync copies the contents of localDir into remoteDir. bwlimitKBps
// caps the transfer rate; zero means unlimited.
func (c *Client) Rsync(ctx context.Context, localDir, remoteDir string, bwlimitKBps int) error {
	args := []string{"-a", "--whole-file"}
	if bwlimitKBps > 0 {
		args = append(args, fmt.Sprintf("--bwlimit=%d", bwlimitKBps))
	}
	args = append(args,
		"-e", fmt.Sprintf("ssh -o BatchMode=yes -p %d", c.Endpoint.port()),
		strings.TrimSuffix(localDir, "/")+"/",
		fmt.Sprintf("%s:%s/", c.Endpoint.addr(), strings.TrimSuffix(remoteDir, "/")),
	)
	return c.Runner.Run(ctx, "rsync", args...)
}

// Push copies one local file to a remote path.
func (c *Client) Push(ctx context.Context, localFile, remotePath string) error {
	args := []string{
		"-e", fmt.Sprintf("ssh -o BatchMode=yes -p %d", c.Endpoint.port()),
		localFile,
		fmt.Sprintf("%s:%s", c.Endpoint.addr(), remotePath),
	}
	return c.Runner.Run(ctx, "rsync", args...)
}

// PutFile writes content to a remote path by streaming it through ssh.
func (c *Client) PutFile(ctx context.Context, content []byte, remotePath string) error {
	args := c.sshArgs("sh", "-c", fmt.Sprintf("cat > %s", shellQuote(remotePath)))
	return c.Runner.RunInput(ctx, content, "ssh", args...)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ResolveTableDir finds the on-disk table directory for a logical table
// under the remote keyspace directory. Table directories carry an
// internal id suffix, so the match is on the name prefix. Missing or
// ambiguous matches are errors; the caller must never guess.
func (c *Client) ResolveTableDir(ctx context.Context, remoteDataDir, keyspace, table string) (string, error) {
	entries, err := c.ListDir(ctx, remoteDataDir+"/"+keyspace)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, entry := range entries {
		if entry == table || strings.HasPrefix(entry, table+"-") {
			matches = append(matches, entry)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no table directory for %s.%s under %s", keyspace, table, remoteDataDir)
	case 1:
		return remoteDataDir + "/" + keyspace + "/" + matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous table directory for %s.%s: %s", keyspace, table, strings.Join(matches, ", "))
	}
}
