package tunnel

import "fmt"

// serverBinary is the name of the server daemon executable expected under
// the remote install path.
const serverBinary = "tetherd"

// sshArgs builds the ssh argument list: a local forward from the client
// port to the server port, then the remote command that launches the server
// daemon against the workspace. The host must resolve through the
// operator's own ssh configuration.
func sshArgs(opts Options) []string {
	return []string{
		"-L", fmt.Sprintf("%d:localhost:%d", opts.ClientPort, opts.ServerPort),
		opts.Host,
		fmt.Sprintf("%s/%s -w %s -p %d", opts.RemotePath, serverBinary, opts.Workspace, opts.ServerPort),
	}
}
