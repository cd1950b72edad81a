package pipeline

// Aggregator folds detections into a report in encounter order.
type Aggregator struct {
	report *Report
	seen   map[string]bool
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		report: NewReport(VideoInfo{}),
		seen:   make(map[string]bool),
	}
}

// Record appends d and, when d.Name has not been seen yet in this report,
// makes d the unique face for that name with imagePath as its crop.
func (a *Aggregator) Record(d Detection, imagePath string) {
	a.report.Detections = append(a.report.Detections, d)
	if a.seen[d.Name] {
		return
	}
	a.seen[d.Name] = true
	a.report.UniqueFaces = append(a.report.UniqueFaces, UniqueFace{
		ID:        d.FaceID,
		Name:      d.Name,
		ImagePath: imagePath,
	})
}

// Finalize stamps the video info and returns the report. The aggregator
// must not be used afterwards.
func (a *Aggregator) Finalize(info VideoInfo) *Report {
	a.report.VideoInfo = info
	r := a.report
	a.report = nil
	return r
}

// Relabel renames every detection and the unique face carrying faceID. It
// returns how many detections changed; an unknown faceID changes nothing
// and is not an error.
func Relabel(r *Report, faceID, newName string) int {
	updated := 0
	for i := range r.Detections {
		if r.Detections[i].FaceID == faceID {
			r.Detections[i].Name = newName
			updated++
		}
	}
	for i := range r.UniqueFaces {
		if r.UniqueFaces[i].ID == faceID {
			r.UniqueFaces[i].Name = newName
			break
		}
	}
	return updated
}
