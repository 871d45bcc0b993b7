// Package version reports which build of a pipeline process is running.
//
// The release and commit come from -ldflags when set, otherwise from the
// VCS stamps the Go toolchain embeds:
//
//	go build -ldflags "-X github.com/kbukum/flowkit/version.Version=v1.4.0"
//
// Info is logged when an App starts and is served under "build" by the
// monitor health endpoint, next to the flowkit version the binary links.
package version
