package pipeline

// VideoInfo describes the processed video.
type VideoInfo struct {
	FPS      float64 `json:"fps"`
	Duration float64 `json:"duration"`
}

// Detection is one face found in one sampled frame. Location is
// [top, right, bottom, left] in original frame pixels.
type Detection struct {
	Frame    int     `json:"frame"`
	Time     float64 `json:"time"`
	FaceID   string  `json:"face_id"`
	Name     string  `json:"name"`
	Location [4]int  `json:"location"`
}

// UniqueFace is the first detection seen for a given name.
type UniqueFace struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ImagePath string `json:"image_path"`
}

// Report is the persisted result of one video run.
type Report struct {
	VideoInfo   VideoInfo    `json:"video_info"`
	Detections  []Detection  `json:"detections"`
	UniqueFaces []UniqueFace `json:"unique_faces"`
}

// NewReport returns an empty report whose lists encode as [] rather than null.
func NewReport(info VideoInfo) *Report {
	return &Report{
		VideoInfo:   info,
		Detections:  []Detection{},
		UniqueFaces: []UniqueFace{},
	}
}
