// Package main hosts the batch worker entrypoint.
//
// The worker runs in one of two modes:
//   - One-shot: invoked by a GitHub workflow with -id and -keywords, -csv-file or -csv-data. It scrapes the
//     batch, writes the artifact to the configured result store, and exits non-zero on failure.
//   - Subscriber: with no -id and a configured Pub/Sub subscription it receives batch requests until
//     SIGINT/SIGTERM, acking each message once its artifact is written.
//
// -csv-data is read as plain CSV text unless -csv-base64 is set, which the GitHub
// workflow passes along with the dispatcher's base64 csvFile input.
package main
