// Package srt models transcript segments and converts them to and from
// the SubRip subtitle format used by transcript results and segment
// save requests.
package srt
