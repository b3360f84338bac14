// Package domain defines the core types and interfaces shared by the
// poller, the streaming layer and the HTTP API. It holds contracts only;
// the terminal gateway adapter implements them.
package domain
