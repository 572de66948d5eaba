package document

// packer fills pages top to bottom. A piece that does not fit the remaining
// space starts a new page; a piece taller than a whole page gets a page of
// its own and is flagged Oversized.
type packer struct {
	capacity float64
	pages    []Page
	cur      Page
}

func newPacker(capacity float64) *packer {
	return &packer{capacity: capacity, cur: Page{Number: 1}}
}

func (p *packer) remaining() float64 {
	return p.capacity - p.cur.UsedMM
}

func (p *packer) breakPage() {
	if len(p.cur.Blocks) == 0 {
		return
	}
	p.pages = append(p.pages, p.cur)
	p.cur = Page{Number: len(p.pages) + 1}
}

func (p *packer) add(b Block) {
	p.cur.Blocks = append(p.cur.Blocks, b)
	p.cur.UsedMM += b.HeightMM + blockSeparatorMM
}

func (p *packer) place(b Block) {
	if b.HeightMM > p.capacity {
		p.breakPage()
		b.Oversized = true
		p.add(b)
		p.breakPage()
		return
	}
	if b.HeightMM > p.remaining() {
		p.breakPage()
	}
	p.add(b)
}

// placeTable splits the item table between rows only, repeating the column
// header on every page the table touches.
func (p *packer) placeTable(rows []ItemRow) {
	columns := func() []string { return append([]string(nil), itemColumns...) }
	if len(rows) == 0 {
		p.place(Block{Kind: BlockItems, HeightMM: tableHeaderMM, Items: &ItemTable{Columns: columns()}})
		return
	}

	var seg *ItemTable
	var segHeight float64
	continued := false
	flush := func() {
		if seg == nil {
			return
		}
		p.add(Block{Kind: BlockItems, HeightMM: segHeight, Continued: continued, Items: seg})
		seg = nil
		continued = true
	}
	start := func() {
		seg = &ItemTable{Columns: columns()}
		segHeight = tableHeaderMM
	}

	for _, row := range rows {
		if tableHeaderMM+row.HeightMM > p.capacity {
			flush()
			p.breakPage()
			p.add(Block{
				Kind:      BlockItems,
				HeightMM:  tableHeaderMM + row.HeightMM,
				Continued: continued,
				Oversized: true,
				Items:     &ItemTable{Columns: columns(), Rows: []ItemRow{row}},
			})
			continued = true
			p.breakPage()
			continue
		}
		switch {
		case seg == nil:
			if tableHeaderMM+row.HeightMM > p.remaining() {
				p.breakPage()
			}
			start()
		case segHeight+row.HeightMM > p.remaining():
			flush()
			p.breakPage()
			start()
		}
		seg.Rows = append(seg.Rows, row)
		segHeight += row.HeightMM
	}
	flush()
}

func (p *packer) finish() []Page {
	if len(p.cur.Blocks) > 0 || len(p.pages) == 0 {
		p.pages = append(p.pages, p.cur)
	}
	return p.pages
}
