// Package notebook runs the "create research notebook" workflow.
//
// A Creator validates the request, allocates an operation record, and then
// performs a fixed sequence of Drive calls under the caller's access token:
//
//	authenticate -> verify parent folder -> create project folder ->
//	upload project_info.pdf -> create audio_files -> upload each audio file
//
// The operation record is advanced after each step so pollers can follow
// along. The workflow is not transactional: a failure part way leaves the
// folders already created in Drive.
package notebook
