package model

import "go.mongodb.org/mongo-driver/bson"

// UnmarshalBSON accepts the downloader's field names, as UnmarshalJSON does.
func (f *FileRef) UnmarshalBSON(b []byte) error {
	var raw struct {
		URL            string `bson:"url"`
		Path           string `bson:"path"`
		StoredFilePath string `bson:"stored_file_path"`
		ContentType    string `bson:"content_type"`
		Mime           string `bson:"mime"`
		Checksum       string `bson:"checksum"`
		Size           int64  `bson:"size"`
		FilesizeBytes  int64  `bson:"filesize_bytes"`
	}
	if err := bson.Unmarshal(b, &raw); err != nil {
		return err
	}
	*f = FileRef{
		URL:         raw.URL,
		Path:        firstNonEmpty(raw.Path, raw.StoredFilePath),
		ContentType: firstNonEmpty(raw.ContentType, raw.Mime),
		Checksum:    raw.Checksum,
		Size:        raw.Size,
	}
	if f.Size == 0 {
		f.Size = raw.FilesizeBytes
	}
	return nil
}

var rawTimeKeys = map[string]bool{"scraped_at": true, "first_seen": true, "updated_at": true}

// UnmarshalBSON decodes a raw record, converting timestamps the crawler
// stored as ISO strings.
func (r *RawRecord) UnmarshalBSON(b []byte) error {
	var d bson.D
	if err := bson.Unmarshal(b, &d); err != nil {
		return err
	}
	for i, e := range d {
		if !rawTimeKeys[e.Key] {
			continue
		}
		if s, ok := e.Value.(string); ok {
			d[i].Value = ParseLooseTime(s)
		}
	}
	norm, err := bson.Marshal(d)
	if err != nil {
		return err
	}
	type plain RawRecord
	return bson.Unmarshal(norm, (*plain)(r))
}
