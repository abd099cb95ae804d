// Package cli turns command-line arguments into an app.Config. It validates
// user input and maps bad usage to an ExitError carrying the exit code.
package cli
