package docx_test

import (
	"testing"

	"github.com/pigcharles06/remote-course-system/internal/docx"
	"github.com/pigcharles06/remote-course-system/internal/docx/docxtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, pkg *docx.Package) ([]string, []docx.Location) {
	t.Helper()
	var texts []string
	var locs []docx.Location
	err := pkg.Walk(func(p *docx.Paragraph, loc docx.Location) {
		texts = append(texts, p.Text())
		locs = append(locs, loc)
	})
	require.NoError(t, err)
	return texts, locs
}

func TestWalk_VisitsInDocumentOrder(t *testing.T) {
	body := docxtest.P(docxtest.R("intro")) +
		docxtest.Table(
			[]string{
				docxtest.P(docxtest.R("r1c1")),
				docxtest.P(docxtest.R("r1c2")) +
					docxtest.Table([]string{docxtest.P(docxtest.R("nested"))}) +
					docxtest.P(docxtest.R("after nested")),
				docxtest.P(docxtest.R("r1c3")),
			},
			[]string{docxtest.P(docxtest.R("r2c1"))},
		) +
		docxtest.P(docxtest.R("outro"))

	pkg, err := docx.Read(docxtest.Build(t, body))
	require.NoError(t, err)

	texts, locs := collect(t, pkg)
	assert.Equal(t, []string{"intro", "r1c1", "r1c2", "nested", "after nested", "r1c3", "r2c1", "outro"}, texts)

	assert.Equal(t, 0, locs[0].Depth())
	assert.Equal(t, 2, locs[3].Depth())
	assert.Equal(t, "word/document.xml table 1 > row 1 > cell 2 > table 1 > row 1 > cell 1 > paragraph 1", locs[3].String())
	assert.Equal(t, "word/document.xml table 1 > row 2 > cell 1 > paragraph 1", locs[6].String())
	assert.Equal(t, 1, locs[7].Paragraph)
}

func TestWalk_DeepNesting(t *testing.T) {
	body := docxtest.Nest(3, docxtest.P(docxtest.R("deep")))
	pkg, err := docx.Read(docxtest.Build(t, body))
	require.NoError(t, err)

	texts, locs := collect(t, pkg)
	require.Contains(t, texts, "deep")
	for i, text := range texts {
		if text == "deep" {
			assert.Equal(t, 3, locs[i].Depth())
		}
	}
}

func TestWalk_ContentControlsAreTransparent(t *testing.T) {
	body := `<w:sdt><w:sdtPr/><w:sdtContent>` + docxtest.P(docxtest.R("in control")) + `</w:sdtContent></w:sdt>` +
		`<w:tbl><w:tr><w:sdt><w:sdtContent><w:tc>` + docxtest.P(docxtest.R("cell in control")) + `</w:tc></w:sdtContent></w:sdt></w:tr></w:tbl>`

	pkg, err := docx.Read(docxtest.Build(t, body))
	require.NoError(t, err)

	texts, _ := collect(t, pkg)
	assert.Equal(t, []string{"in control", "cell in control"}, texts)
}

func TestWalk_TooDeep(t *testing.T) {
	body := docxtest.Nest(docx.MaxDepth+1, docxtest.P(docxtest.R("x")))
	pkg, err := docx.Read(docxtest.Build(t, body))
	require.NoError(t, err)

	err = pkg.Walk(func(*docx.Paragraph, docx.Location) {})
	assert.ErrorIs(t, err, docx.ErrTooDeep)
}

func TestWalk_HeadersAfterBody(t *testing.T) {
	data := docxtest.Build(t, docxtest.P(docxtest.R("body")),
		docxtest.Entry{Name: "word/header1.xml", Content: docxtest.HeaderXML(docxtest.P(docxtest.R("header")))},
	)
	pkg, err := docx.Read(data)
	require.NoError(t, err)

	texts, locs := collect(t, pkg)
	assert.Equal(t, []string{"body", "header"}, texts)
	assert.Equal(t, "word/header1.xml", locs[1].Part)
}
