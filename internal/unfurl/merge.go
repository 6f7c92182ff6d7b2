package unfurl

// Merge combines partial records for the same post into one richer
// record. For every field independently, the first record carrying a
// non-empty value wins; later records never override it. URL and
// PostID are preserved from whichever source has them.
func Merge(records ...PostRecord) PostRecord {
	var out PostRecord
	for _, r := range records {
		if out.Username == "" {
			out.Username = r.Username
		}
		if out.Caption == "" {
			out.Caption = r.Caption
		}
		if out.Likes == nil {
			out.Likes = r.Likes
		}
		if out.Comments == nil {
			out.Comments = r.Comments
		}
		if out.VideoURL == "" {
			out.VideoURL = r.VideoURL
		}
		if out.ImageURL == "" {
			out.ImageURL = r.ImageURL
		}
		if out.ContentType == "" {
			out.ContentType = r.ContentType
		}
		if r.IsVerified {
			out.IsVerified = true
		}
		if out.Timestamp == nil {
			out.Timestamp = r.Timestamp
		}
		if out.PostID == "" {
			out.PostID = r.PostID
		}
		if out.URL == "" {
			out.URL = r.URL
		}
	}
	return out
}
