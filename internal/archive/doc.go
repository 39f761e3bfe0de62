// Package archive turns the per-angle clips of one recorded event into a
// single captioned, uploaded video and a time-limited link to it.
//
// Jobs run on a pipeline.Engine in six steps:
//
//  1. render each clip timestamp into one segment (quad layout, or scene
//     switching in condensed mode)
//  2. write the concat manifest
//  3. concatenate the segments without re-encoding
//  4. attach a silent audio track
//  5. upload, gated on connectivity
//  6. issue the signed link
//
// Every artifact a job creates lives in the ram directory under a random name
// and is removed once the next step has consumed it, and again on terminal
// success or failure.
package archive
