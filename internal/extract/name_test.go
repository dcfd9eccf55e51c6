package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/carrier-sync/internal/model"
)

func TestResolveName_Field(t *testing.T) {
	got := ResolveName(mustParse(t, snapshotHTML), DefaultExtractor(), "1234567")
	assert.Equal(t, "ACME TRUCKING LLC", got.Name)
	assert.Equal(t, model.NameSourceField, got.Source)
}

func TestResolveName_Fallbacks(t *testing.T) {
	long := strings.Repeat("A", 201)
	tests := []struct {
		name       string
		markup     string
		wantName   string
		wantSource model.NameSource
	}{
		{
			name:       "title when field missing",
			markup:     `<html><head><title>SAFER Web - Company Snapshot ROADWAY EXPRESS INC</title></head><body></body></html>`,
			wantName:   "ROADWAY EXPRESS INC",
			wantSource: model.NameSourceTitle,
		},
		{
			name: "title when field is boilerplate",
			markup: `<html><head><title>Company Snapshot: BLUE LINE CO</title></head><body><table>
<tr><th>Legal Name:</th><td>Search Criteria: USDOT 12345</td></tr></table></body></html>`,
			wantName:   "BLUE LINE CO",
			wantSource: model.NameSourceTitle,
		},
		{
			name: "title when field is too long",
			markup: `<html><head><title>Company Snapshot GREEN HAUL LLC</title></head><body><table>
<tr><th>Legal Name:</th><td>` + long + `</td></tr></table></body></html>`,
			wantName:   "GREEN HAUL LLC",
			wantSource: model.NameSourceTitle,
		},
		{
			name:       "body corporate suffix",
			markup:     `<html><head><title>Query Result</title></head><body><p>Operated by ROADRUNNER FREIGHT INC under lease</p></body></html>`,
			wantName:   "ROADRUNNER FREIGHT INC",
			wantSource: model.NameSourceBodySuffix,
		},
		{
			name:       "body capitalized phrase",
			markup:     `<html><body><p>USDOT</p><p>Carrier name: BLUE RIDGE HAULERS</p></body></html>`,
			wantName:   "BLUE RIDGE HAULERS",
			wantSource: model.NameSourceBodyPhrase,
		},
		{
			name:       "placeholder",
			markup:     `<html><body><p>no data available</p></body></html>`,
			wantName:   "Carrier 12345",
			wantSource: model.NameSourcePlaceholder,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveName(mustParse(t, tt.markup), DefaultExtractor(), "12345")
			assert.Equal(t, tt.wantName, got.Name)
			assert.Equal(t, tt.wantSource, got.Source)
		})
	}
}

func TestResolveName_NeverEmptyForMissingField(t *testing.T) {
	docs := []string{
		``,
		`<html></html>`,
		`<html><body><table><tr><th>Legal Name:</th><td></td></tr></table></body></html>`,
		`<html><body><table><tr><th>Legal Name:</th><td>Record Not Found</td></tr></table></body></html>`,
		`<html><body><p>not found</p></body></html>`,
	}
	for _, markup := range docs {
		got := ResolveName(mustParse(t, markup), DefaultExtractor(), "777")
		assert.NotEmpty(t, got.Name)
		assert.NotEqual(t, "not found", strings.ToLower(got.Name))
	}
}

func TestPlausibleName(t *testing.T) {
	assert.True(t, plausibleName("ACME LLC"))
	assert.False(t, plausibleName(""))
	assert.False(t, plausibleName("12345"))
	assert.False(t, plausibleName("SAFER Web Company Snapshot"))
	assert.False(t, plausibleName(strings.Repeat("x", 201)))
}

func TestResolveName_SkipsFieldValues(t *testing.T) {
	noName := strings.Replace(snapshotHTML,
		`<tr><th><a class="querylabel">Legal Name:</a></th><td class="queryfield">ACME TRUCKING LLC&nbsp;</td></tr>`, "", 1)
	noName = strings.Replace(noName,
		`<title>SAFER Web - Company Snapshot ACME TRUCKING LLC</title>`, `<title>Company Snapshot</title>`, 1)

	tests := []struct {
		name   string
		markup string
	}{
		{name: "snapshot without legal name", markup: noName},
		{
			name:   "address in running text",
			markup: `<html><body><p>Physical Address: 1234 BROADWAY<br>DENVER, CO 80202</p></body></html>`,
		},
		{
			name:   "address with bold label",
			markup: `<html><body><p><b>Mailing Address:</b> 77 GRAND AVE<br>BOULDER CO</p></body></html>`,
		},
		{
			name: "state code is not a corporate suffix",
			markup: `<html><body><table>
<tr><th>Physical Address:</th><td>1600 BROADWAY DENVER CO</td></tr>
<tr><td>Operating Authority Status:</td><td>NOT AUTHORIZED</td></tr>
</table></body></html>`,
		},
		{
			name:   "bare city and zip",
			markup: `<html><body><p>DENVER CO 80202</p></body></html>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveName(mustParse(t, tt.markup), DefaultExtractor(), "123")
			assert.Equal(t, "Carrier 123", got.Name)
			assert.Equal(t, model.NameSourcePlaceholder, got.Source)
		})
	}
}

func TestResolveName_BodyNameBesideFields(t *testing.T) {
	markup := `<html><body><p>Operated by SUMMIT FREIGHT INC</p><table>
<tr><th>Physical Address:</th><td>1600 BROADWAY DENVER CO</td></tr>
</table></body></html>`
	got := ResolveName(mustParse(t, markup), DefaultExtractor(), "123")
	assert.Equal(t, "SUMMIT FREIGHT INC", got.Name)
	assert.Equal(t, model.NameSourceBodySuffix, got.Source)
}
