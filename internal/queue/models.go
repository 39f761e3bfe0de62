package queue

import "time"

// JobRecord is the durable form of one in-flight pipeline job. State holds the
// pipeline's own JSON encoding of the job descriptor.
type JobRecord struct {
	Seq       int64
	Pipeline  string
	ID        string
	Step      int
	Attempts  int
	State     []byte
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ArchiveRecord describes one published archive video. Created and Processed
// are epoch milliseconds; Taken is the wall-clock processing duration in
// milliseconds.
type ArchiveRecord struct {
	Type      string  `json:"type"`
	Created   int64   `json:"created"`
	Processed int64   `json:"processed"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	URL       string  `json:"url"`
	Taken     int64   `json:"taken"`
}

// StreamEntry maps a camera angle to the most recently published stream folder.
type StreamEntry struct {
	Angle     string    `json:"angle"`
	Folder    string    `json:"folder"`
	UpdatedAt time.Time `json:"updated_at"`
}
