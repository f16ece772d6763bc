package publishing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reels-agent/internal/models"
)

func TestBuildCaption(t *testing.T) {
	reel := &models.Reel{Caption: "  Sunset over the lagoon  "}
	source := &models.Source{Name: "Soneva Fushi", InstagramHandle: "soneva.fushi"}
	settings := &models.Settings{CaptionTemplate: "Reposted from {source_name}"}

	got := BuildCaption(reel, source, settings)
	want := "Sunset over the lagoon\n\n" +
		"Reposted from Soneva Fushi\n\n" +
		"Credit: @soneva.fushi\n\n" +
		"#SonevaFushi"
	assert.Equal(t, want, got)
}

func TestBuildCaptionWithoutTemplate(t *testing.T) {
	reel := &models.Reel{Caption: "Island life"}
	source := &models.Source{Name: "Gili Lankanfushi", InstagramHandle: "@gili.lankanfushi"}

	got := BuildCaption(reel, source, &models.Settings{})
	// The @ prefix on the stored handle is not doubled
	assert.Equal(t, "Island life\n\nCredit: @gili.lankanfushi\n\n#GiliLankanfushi", got)
}

func TestBuildCaptionEmptyOriginal(t *testing.T) {
	reel := &models.Reel{}
	source := &models.Source{Name: "Resort", InstagramHandle: "resort"}

	got := BuildCaption(reel, source, nil)
	assert.Equal(t, "Credit: @resort\n\n#Resort", got)
}

func TestBuildCaptionNoSource(t *testing.T) {
	reel := &models.Reel{Caption: "Paradise"}
	settings := &models.Settings{CaptionTemplate: "From {source_name}"}

	// Without a source the placeholder stays as-is and no credit is added
	got := BuildCaption(reel, nil, settings)
	assert.Equal(t, "Paradise\n\nFrom {source_name}", got)
}
