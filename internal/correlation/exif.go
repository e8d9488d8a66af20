package correlation

import (
	"strings"

	exif "github.com/dsoprea/go-exif/v3"

	"github.com/nao1215/darkcrawl/internal/model"
)

// exifTagTypes maps the EXIF tags that identify a device, a workstation or
// a person to the fact type they produce. Make and Model are combined into
// one exif_camera value.
var exifTagTypes = map[string]model.CorrelationType{
	"SerialNumber":       model.CorrelationExifSerial,
	"CameraSerialNumber": model.CorrelationExifSerial,
	"BodySerialNumber":   model.CorrelationExifSerial,
	"LensSerialNumber":   model.CorrelationExifSerial,
	"Software":           model.CorrelationExifSoftware,
	"ProcessingSoftware": model.CorrelationExifSoftware,
	"HostComputer":       model.CorrelationExifSoftware,
	"Artist":             model.CorrelationExifAuthor,
	"Author":             model.CorrelationExifAuthor,
	"XPAuthor":           model.CorrelationExifAuthor,
	"Copyright":          model.CorrelationExifAuthor,
}

func hasExif(page *model.PageResult) bool {
	if len(page.Body) == 0 {
		return false
	}
	switch page.ContentType {
	case "image/jpeg", "image/jpg", "image/tiff", "image/heic", "image/heif":
		return true
	}
	return false
}

func detectExif(page *model.PageResult, facts *factSet) {
	raw, err := exif.SearchAndExtractExif(page.Body)
	if err != nil || raw == nil {
		return
	}
	tags, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return
	}
	exifFacts(tags, facts)
}

// exifFacts adds the facts of a flat EXIF tag list.
func exifFacts(tags []exif.ExifTag, facts *factSet) {
	var maker, modelName string
	for _, tag := range tags {
		value := cleanExifValue(tag.Formatted)
		switch tag.TagName {
		case "Make":
			maker = value
			continue
		case "Model":
			modelName = value
			continue
		}
		if typ, ok := exifTagTypes[tag.TagName]; ok {
			facts.add(typ, value)
		}
	}

	camera := strings.TrimSpace(maker + " " + modelName)
	// Model often repeats the make ("Canon Canon EOS 5D").
	if maker != "" && strings.HasPrefix(strings.ToLower(modelName), strings.ToLower(maker)) {
		camera = modelName
	}
	facts.add(model.CorrelationExifCamera, camera)
}

// cleanExifValue strips the NUL padding and brackets some writers leave in
// ASCII values.
func cleanExifValue(s string) string {
	s = strings.TrimRight(s, "\x00")
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	return strings.TrimSpace(s)
}
