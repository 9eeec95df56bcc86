// Package drive wraps the Google Drive v3 API behind the small surface the
// notebook workflow needs: identify the caller, look up a folder, create a
// folder, and upload a file. Every Service is bound to one caller-supplied
// OAuth access token; nothing here stores or refreshes credentials.
package drive
