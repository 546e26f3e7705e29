// Command threadsync is the HappySRT synchronization client: it keeps
// a local mirror of transcription threads, uploads media, submits
// processing runs, and exports results.
package main
