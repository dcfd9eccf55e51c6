package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const snapshotHTML = `<html><head><title>SAFER Web - Company Snapshot ACME TRUCKING LLC</title></head>
<body>
<p>SAFER Web - Company Snapshot</p>
<table>
<tr><th class="querylabelbkg"><a class="querylabel" href="#">Entity Type:</a></th><td class="queryfield">CARRIER&nbsp;</td></tr>
<tr><th class="querylabelbkg"><a class="querylabel" href="#">USDOT Status:</a></th><td class="queryfield">ACTIVE</td></tr>
<tr><th><a class="querylabel">Legal Name:</a></th><td class="queryfield">ACME TRUCKING LLC&nbsp;</td></tr>
<tr><th><a class="querylabel">DBA Name:</a></th><td class="queryfield">&nbsp;</td></tr>
<tr><th><a class="querylabel">Physical Address:</a></th><td class="queryfield">123 MAIN ST<br>SPRINGFIELD, IL 62701</td></tr>
<tr><th><a class="querylabel">Phone:</a></th><td class="queryfield">(555) 123-4567</td></tr>
<tr><th><a class="querylabel">Mailing Address:</a></th><td class="queryfield">PO BOX 9<br>SPRINGFIELD, IL 62702</td></tr>
<tr><th><a class="querylabel">MC/MX/FF Number(s):</a></th><td class="queryfield">MC-123456</td></tr>
<tr><th><a class="querylabel">Power Units:</a></th><td class="queryfield">1,204</td><th><a class="querylabel">Drivers:</a></th><td class="queryfield">987</td></tr>
<tr><th><a class="querylabel">MCS-150 Form Date:</a></th><td class="queryfield">03/15/2025</td></tr>
<tr><th><a class="querylabel">Operating Authority Status:</a></th><td class="queryfield">AUTHORIZED FOR Property</td></tr>
<tr><th><a class="querylabel">Out of Service Date:</a></th><td class="queryfield">None</td></tr>
<tr><th class="querylabelbkg"><a class="querylabel">Operation Classification:</a></th></tr>
<tr><td><table>
  <tr><td class="queryfield">X</td><td>Auth. For Hire</td><td class="queryfield"></td><td>Exempt For Hire</td></tr>
  <tr><td class="queryfield"></td><td>Private(Property)</td><td class="queryfield">X</td><td>U.S. Mail</td></tr>
</table></td></tr>
<tr><th class="querylabelbkg"><a class="querylabel">Carrier Operation:</a></th></tr>
<tr><td><table><tr><td class="queryfield">X</td><td>Interstate</td><td class="queryfield"></td><td>Intrastate Only (HM)</td></tr></table></td></tr>
<tr><th class="querylabelbkg"><a class="querylabel">Cargo Carried:</a></th></tr>
<tr><td><table><tr><td>X</td><td>General Freight</td><td></td><td>Household Goods</td><td>X</td><td>Building Materials</td></tr></table></td></tr>
</table>
<table>
<tr><td>Rating Date:</td><td>07/01/2024</td></tr>
<tr><td>Rating:</td><td>Satisfactory</td></tr>
<tr><td>Insurance Expiration Date:</td><td>2026-11-30</td></tr>
</table>
</body></html>`

func mustParse(t *testing.T, markup string) *Document {
	t.Helper()
	doc, err := Parse(markup)
	require.NoError(t, err)
	return doc
}
