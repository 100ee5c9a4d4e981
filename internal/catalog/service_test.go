package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"jewelry-backend/internal/apperr"
	"jewelry-backend/internal/audit"
	"jewelry-backend/internal/logger"
	"jewelry-backend/internal/models"
	"jewelry-backend/internal/pricing"
	"jewelry-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var admin = models.Actor{ID: 1, Name: "admin@example.com", Role: models.RoleAdmin}

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	return NewService(db, audit.NewLog(db, 5*time.Second), NewGuard(db, 5*time.Second), logger.Nop(), 5*time.Second), db
}

func history(t *testing.T, db *gorm.DB, materialID uint) []models.PriceHistoryEntry {
	t.Helper()
	entries, err := audit.NewLog(db, 5*time.Second).List(context.Background(), audit.Filter{EntityID: materialID}, 1000)
	if err != nil {
		t.Fatalf("audit List: %v", err)
	}
	return entries
}

func goldInput() MaterialInput {
	return MaterialInput{
		Kind:        models.MaterialKindMetal,
		Code:        " gold18k ",
		Name:        "Gold18K",
		ColorOrType: "rose",
		Variants: []VariantInput{
			{Name: "18K rose", Purity: "750", UnitPrice: testutil.Dec("4900")},
			{Name: "18K yellow", Purity: "750", UnitPrice: testutil.Dec("4950"), IsActive: testutil.PtrBool(false)},
		},
		DefaultWastagePercentage: testutil.Dec("2.5"),
		DefaultMakingCharges:     testutil.Dec("12"),
		DefaultMakingChargeType:  models.MakingChargePercentage,
	}
}

func TestCreate(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	m, err := s.Create(ctx, goldInput(), admin)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.ID == 0 || m.Code != "GOLD18K" {
		t.Fatalf("created = %+v", m)
	}
	if len(m.Variants) != 2 {
		t.Fatalf("variants = %d, want 2", len(m.Variants))
	}
	if m.Variants[0].ID == uuid.Nil || m.Variants[0].ID == m.Variants[1].ID {
		t.Fatalf("variant ids not assigned: %v %v", m.Variants[0].ID, m.Variants[1].ID)
	}
	if !m.Variants[0].IsActive || m.Variants[1].IsActive {
		t.Fatalf("active flags = %v %v", m.Variants[0].IsActive, m.Variants[1].IsActive)
	}

	got, err := s.Get(ctx, m.ID, Filter{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Variants[1].UnitPrice.Equal(testutil.Dec("4950")) {
		t.Fatalf("stored price = %s", got.Variants[1].UnitPrice)
	}
}

func TestCreateRejects(t *testing.T) {
	s, db := newService(t)
	testutil.SeedGold22K(t, db)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*MaterialInput)
		check  func(error) bool
	}{
		{"empty variants", func(in *MaterialInput) { in.Variants = nil }, isValidation},
		{"unknown kind", func(in *MaterialInput) { in.Kind = "wood" }, isValidation},
		{"blank code", func(in *MaterialInput) { in.Code = "  " }, isValidation},
		{"negative price", func(in *MaterialInput) { in.Variants[0].UnitPrice = testutil.Dec("-1") }, isValidation},
		{"price too precise", func(in *MaterialInput) { in.Variants[0].UnitPrice = testutil.Dec("6200.00001") }, isValidation},
		{"price too large", func(in *MaterialInput) { in.Variants[0].UnitPrice = testutil.Dec("12345678901234567.89") }, isValidation},
		{"negative wastage", func(in *MaterialInput) { in.DefaultWastagePercentage = testutil.Dec("-0.5") }, isValidation},
		{"unknown making type", func(in *MaterialInput) { in.DefaultMakingChargeType = "per_piece" }, isValidation},
		{"client supplied id", func(in *MaterialInput) { id := uuid.New(); in.Variants[0].ID = &id }, isValidation},
		{"duplicate code", func(in *MaterialInput) { in.Code = "gold22k" }, isDuplicate("code")},
		{"duplicate name ignores case", func(in *MaterialInput) { in.Name = "GOLD22K" }, isDuplicate("name")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := goldInput()
			tt.mutate(&in)
			_, err := s.Create(ctx, in, admin)
			if !tt.check(err) {
				t.Fatalf("Create error = %v", err)
			}
		})
	}
}

func TestCreateGemstoneRejectsMakingCharges(t *testing.T) {
	s, _ := newService(t)
	in := MaterialInput{
		Kind:                 models.MaterialKindGemstone,
		Code:                 "RUBY",
		Name:                 "Ruby",
		Variants:             []VariantInput{{Name: "oval", UnitPrice: testutil.Dec("9000")}},
		DefaultMakingCharges: testutil.Dec("100"),
	}
	if _, err := s.Create(context.Background(), in, admin); !isValidation(err) {
		t.Fatalf("Create error = %v, want ValidationError", err)
	}
}

func TestCreateSameCodeAcrossKinds(t *testing.T) {
	s, db := newService(t)
	testutil.SeedGold22K(t, db)

	in := MaterialInput{
		Kind:     models.MaterialKindGemstone,
		Code:     "GOLD22K",
		Name:     "Gold22K",
		Variants: []VariantInput{{Name: "imitation", UnitPrice: testutil.Dec("1")}},
	}
	if _, err := s.Create(context.Background(), in, admin); err != nil {
		t.Fatalf("codes are unique per kind, got %v", err)
	}
}

func TestCreateReusesCodeOfDeletedMaterial(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	ctx := context.Background()

	if err := s.SoftDelete(ctx, gold.ID, admin); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	in := goldInput()
	in.Code, in.Name = "GOLD22K", "Gold22K"
	if _, err := s.Create(ctx, in, admin); err != nil {
		t.Fatalf("Create after delete: %v", err)
	}
}

func TestGetAndListFilter(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	dia := testutil.SeedDiamond(t, db)
	ctx := context.Background()

	if err := s.SoftDelete(ctx, gold.ID, admin); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	var nf *apperr.NotFoundError
	if _, err := s.Get(ctx, gold.ID, Filter{}); !errors.As(err, &nf) {
		t.Fatalf("Get deleted = %v, want NotFoundError", err)
	}
	got, err := s.Get(ctx, gold.ID, Filter{IncludeDeleted: true})
	if err != nil {
		t.Fatalf("Get include deleted: %v", err)
	}
	if !got.IsDeleted || got.DeletedAt == nil {
		t.Fatalf("deleted flags = %v %v", got.IsDeleted, got.DeletedAt)
	}

	live, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(live) != 1 || live[0].ID != dia.ID {
		t.Fatalf("live list = %+v", live)
	}

	all, err := s.List(ctx, Filter{IncludeDeleted: true})
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("list with deleted = %d rows, want 2", len(all))
	}

	metals, err := s.List(ctx, Filter{Kind: models.MaterialKindMetal, IncludeDeleted: true})
	if err != nil {
		t.Fatalf("List metals: %v", err)
	}
	if len(metals) != 1 || metals[0].ID != gold.ID {
		t.Fatalf("metal list = %+v", metals)
	}
}

// Gold22K at 6000/g, 10g of variant 0, 3% wastage, flat 500 making.
func TestUpdateVariantPriceRepricesProduct(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	p := testutil.SeedProduct(t, db, "RING-01", models.CompositionLine{
		MaterialKind: models.MaterialKindMetal,
		MaterialRef:  gold.ID,
		VariantID:    gold.Variants[0].ID,
		VariantIndex: 0,
		Quantity:     testutil.Dec("10"),
	})
	ctx := context.Background()

	price := func() string {
		t.Helper()
		snap, err := s.Snapshot(ctx, pricing.MaterialRefs(p.Composition))
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		q, err := pricing.Price(p.Composition, snap)
		if err != nil {
			t.Fatalf("Price: %v", err)
		}
		return q.SubtotalString()
	}

	if got := price(); got != "62300.00" {
		t.Fatalf("price before = %s, want 62300.00", got)
	}

	res, err := s.UpdateVariantPrice(ctx, gold.ID, 0, testutil.Dec("6200"), admin)
	if err != nil {
		t.Fatalf("UpdateVariantPrice: %v", err)
	}
	if res.Entry == nil {
		t.Fatal("expected an audit entry")
	}

	entries := history(t, db, gold.ID)
	if len(entries) != 1 {
		t.Fatalf("history = %d entries, want 1", len(entries))
	}
	e := entries[0]
	if !e.OldPrice.Equal(testutil.Dec("6000")) || !e.NewPrice.Equal(testutil.Dec("6200")) {
		t.Fatalf("entry prices = %s -> %s", e.OldPrice, e.NewPrice)
	}
	if e.VariantName != "22K yellow" || e.ChangedBy != admin.Name || e.EntityType != "metal" {
		t.Fatalf("entry = %+v", e)
	}
	if e.VariantID != gold.Variants[0].ID || e.VariantIndex != 0 {
		t.Fatalf("entry variant = %v/%d", e.VariantID, e.VariantIndex)
	}

	if got := price(); got != "64360.00" {
		t.Fatalf("price after = %s, want 64360.00", got)
	}
}

func TestUpdateVariantPriceIdempotent(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.UpdateVariantPrice(ctx, gold.ID, 1, testutil.Dec("6100"), admin); err != nil {
			t.Fatalf("UpdateVariantPrice #%d: %v", i, err)
		}
	}
	res, err := s.UpdateVariantPrice(ctx, gold.ID, 1, testutil.Dec("6100.000"), admin)
	if err != nil {
		t.Fatalf("UpdateVariantPrice equal scale: %v", err)
	}
	if res.Entry != nil {
		t.Fatalf("unchanged price produced entry %+v", res.Entry)
	}

	if n := len(history(t, db, gold.ID)); n != 1 {
		t.Fatalf("history = %d entries, want 1", n)
	}
}

func TestUpdateVariantPriceEqualToStoredIsNoop(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)

	res, err := s.UpdateVariantPrice(context.Background(), gold.ID, 0, testutil.Dec("6000"), admin)
	if err != nil {
		t.Fatalf("UpdateVariantPrice: %v", err)
	}
	if res.Entry != nil || !res.Material.Variants[0].UnitPrice.Equal(testutil.Dec("6000")) {
		t.Fatalf("res = %+v", res)
	}
	if n := len(history(t, db, gold.ID)); n != 0 {
		t.Fatalf("history = %d entries, want 0", n)
	}
}

func TestUpdateVariantPriceErrors(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	deleted := testutil.SeedDiamond(t, db)
	ctx := context.Background()
	if err := s.SoftDelete(ctx, deleted.ID, admin); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	var (
		oor *apperr.IndexOutOfRangeError
		nf  *apperr.NotFoundError
	)
	if _, err := s.UpdateVariantPrice(ctx, gold.ID, 2, testutil.Dec("1"), admin); !errors.As(err, &oor) {
		t.Fatalf("index 2 = %v, want IndexOutOfRangeError", err)
	}
	if oor.Count != 2 || oor.Index != 2 {
		t.Fatalf("oor = %+v", oor)
	}
	if _, err := s.UpdateVariantPrice(ctx, gold.ID, -1, testutil.Dec("1"), admin); !errors.As(err, &oor) {
		t.Fatalf("index -1 = %v, want IndexOutOfRangeError", err)
	}
	if _, err := s.UpdateVariantPrice(ctx, gold.ID, 0, testutil.Dec("-0.01"), admin); !isValidation(err) {
		t.Fatalf("negative = %v, want ValidationError", err)
	}
	for _, p := range []string{"6200.12345", "10000000000", "12345678901234567.89"} {
		if _, err := s.UpdateVariantPrice(ctx, gold.ID, 0, testutil.Dec(p), admin); !isValidation(err) {
			t.Fatalf("price %s = %v, want ValidationError", p, err)
		}
	}
	if _, err := s.UpdateVariantPrice(ctx, 999, 0, testutil.Dec("1"), admin); !errors.As(err, &nf) {
		t.Fatalf("missing = %v, want NotFoundError", err)
	}
	if _, err := s.UpdateVariantPrice(ctx, deleted.ID, 0, testutil.Dec("1"), admin); !errors.As(err, &nf) {
		t.Fatalf("deleted = %v, want NotFoundError", err)
	}
	if _, err := s.UpdateVariantPriceByID(ctx, gold.ID, uuid.New(), testutil.Dec("1"), admin); !errors.As(err, &nf) {
		t.Fatalf("unknown variant id = %v, want NotFoundError", err)
	}
	if n := len(history(t, db, gold.ID)); n != 0 {
		t.Fatalf("failed updates wrote %d entries", n)
	}
}

func TestPriceHistoryMatchesStoredPrice(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	ctx := context.Background()

	for _, p := range []string{"6200.1234", "9999999999.9999", "0.0001"} {
		res, err := s.UpdateVariantPrice(ctx, gold.ID, 0, testutil.Dec(p), admin)
		if err != nil {
			t.Fatalf("UpdateVariantPrice(%s): %v", p, err)
		}

		stored, err := s.Get(ctx, gold.ID, Filter{})
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		entry := history(t, db, gold.ID)[0]
		if entry.ID != res.Entry.ID || !entry.NewPrice.Equal(stored.Variants[0].UnitPrice) {
			t.Fatalf("price %s: history new_price = %s, stored = %s", p, entry.NewPrice, stored.Variants[0].UnitPrice)
		}
	}

	// Reverting the last change restores the previous price exactly.
	last := history(t, db, gold.ID)[0]
	res, err := s.RevertPriceChange(ctx, last.ID, admin)
	if err != nil {
		t.Fatalf("RevertPriceChange: %v", err)
	}
	if !res.Material.Variants[0].UnitPrice.Equal(testutil.Dec("9999999999.9999")) {
		t.Fatalf("reverted price = %s", res.Material.Variants[0].UnitPrice)
	}
}

func TestUpdateVariantPriceByID(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)

	res, err := s.UpdateVariantPriceByID(context.Background(), gold.ID, gold.Variants[1].ID, testutil.Dec("6075.5"), admin)
	if err != nil {
		t.Fatalf("UpdateVariantPriceByID: %v", err)
	}
	if res.Entry == nil || res.Entry.VariantIndex != 1 || res.Entry.VariantName != "22K white" {
		t.Fatalf("entry = %+v", res.Entry)
	}
	if !res.Material.Variants[1].UnitPrice.Equal(testutil.Dec("6075.5")) {
		t.Fatalf("price = %s", res.Material.Variants[1].UnitPrice)
	}
}

// Every concurrent update logs the price it actually overwrote, so the
// entries chain: each old price is the previous entry's new price.
func TestConcurrentUpdatesChainOldPrices(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.UpdateVariantPrice(ctx, gold.ID, 0, decimal.NewFromInt(int64(7000+i)), admin)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("UpdateVariantPrice: %v", err)
		}
	}

	entries := history(t, db, gold.ID)
	if len(entries) != n {
		t.Fatalf("history = %d entries, want %d", len(entries), n)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	if !entries[0].OldPrice.Equal(testutil.Dec("6000")) {
		t.Fatalf("first old price = %s, want 6000", entries[0].OldPrice)
	}
	for i := 1; i < n; i++ {
		if !entries[i].OldPrice.Equal(entries[i-1].NewPrice) {
			t.Fatalf("entry %d old price %s != previous new price %s", i, entries[i].OldPrice, entries[i-1].NewPrice)
		}
	}

	stored, err := s.Get(ctx, gold.ID, Filter{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if last := entries[n-1]; !stored.Variants[0].UnitPrice.Equal(last.NewPrice) {
		t.Fatalf("stored %s, last logged %s", stored.Variants[0].UnitPrice, last.NewPrice)
	}
}

func TestReplace(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	ctx := context.Background()

	keep := gold.Variants[1].ID
	in := MaterialInput{
		Kind:                     models.MaterialKindMetal,
		Code:                     "GOLD22K",
		Name:                     "Gold 22K",
		Variants:                 []VariantInput{{ID: &keep, Name: "22K white", Purity: "916", UnitPrice: testutil.Dec("6090")}, {Name: "22K rose", UnitPrice: testutil.Dec("6020")}},
		DefaultWastagePercentage: testutil.Dec("3"),
		DefaultMakingChargeType:  models.MakingChargeFlat,
		DefaultMakingCharges:     testutil.Dec("500"),
	}

	m, entries, err := s.Replace(ctx, gold.ID, in, admin)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if m.Variants[0].ID != keep {
		t.Fatalf("kept variant id = %v, want %v", m.Variants[0].ID, keep)
	}
	if m.Variants[1].ID == uuid.Nil || m.Variants[1].ID == gold.Variants[0].ID {
		t.Fatalf("new variant id = %v", m.Variants[1].ID)
	}
	if len(entries) != 1 || entries[0].VariantIndex != 0 || !entries[0].OldPrice.Equal(testutil.Dec("6050")) {
		t.Fatalf("entries = %+v", entries)
	}
	if n := len(history(t, db, gold.ID)); n != 1 {
		t.Fatalf("history = %d entries, want 1", n)
	}
}

func TestReplaceRejects(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	dia := testutil.SeedDiamond(t, db)
	ctx := context.Background()

	stranger := dia.Variants[0].ID
	in := goldInput()
	in.Variants[0].ID = &stranger
	if _, _, err := s.Replace(ctx, gold.ID, in, admin); !isValidation(err) {
		t.Fatalf("foreign variant id = %v, want ValidationError", err)
	}

	in = goldInput()
	in.Kind = models.MaterialKindGemstone
	in.DefaultWastagePercentage, in.DefaultMakingCharges, in.DefaultMakingChargeType = decimal.Zero, decimal.Zero, ""
	if _, _, err := s.Replace(ctx, gold.ID, in, admin); !isValidation(err) {
		t.Fatalf("kind change = %v, want ValidationError", err)
	}

	if _, err := s.Create(ctx, goldInput(), admin); err != nil {
		t.Fatalf("Create: %v", err)
	}
	in = goldInput()
	if _, _, err := s.Replace(ctx, gold.ID, in, admin); !isDuplicate("code")(err) {
		t.Fatalf("colliding code = %v, want DuplicateCodeError", err)
	}
}

func TestLiveNameIndex(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	ctx := context.Background()

	clash := &models.Material{
		Kind:     models.MaterialKindMetal,
		Code:     "GOLD22K-B",
		Name:     "gold22k",
		Variants: gold.Variants,
	}
	err := db.Create(clash).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("same live name = %v, want ErrDuplicatedKey", err)
	}

	// A write that lost the race reports the field that collided.
	if err := s.translateWriteError(ctx, err, clash); !isDuplicate("name")(err) {
		t.Fatalf("translated = %v, want duplicate name", err)
	}

	if err := s.SoftDelete(ctx, gold.ID, admin); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	clash.ID = 0
	if err := db.Create(clash).Error; err != nil {
		t.Fatalf("name of a deleted material should be free: %v", err)
	}
}

func TestSoftDeleteReferenced(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	p := testutil.SeedProduct(t, db, "RING-01", models.CompositionLine{
		MaterialKind: models.MaterialKindMetal,
		MaterialRef:  gold.ID,
		VariantID:    gold.Variants[1].ID,
		VariantIndex: 1,
		Quantity:     testutil.Dec("4"),
	})
	ctx := context.Background()

	err := s.SoftDelete(ctx, gold.ID, admin)
	var ref *apperr.ReferencedError
	if !errors.As(err, &ref) {
		t.Fatalf("SoftDelete = %v, want ReferencedError", err)
	}
	if ref.Count != 1 {
		t.Fatalf("count = %d, want 1", ref.Count)
	}
	if m, _ := s.Get(ctx, gold.ID, Filter{}); m == nil || m.IsDeleted {
		t.Fatal("material deleted despite reference")
	}

	if err := db.Model(&models.Product{}).Where("id = ?", p.ID).Update("is_deleted", true).Error; err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if err := s.SoftDelete(ctx, gold.ID, admin); err != nil {
		t.Fatalf("SoftDelete after reference removed: %v", err)
	}

	var nf *apperr.NotFoundError
	if err := s.SoftDelete(ctx, gold.ID, admin); !errors.As(err, &nf) {
		t.Fatalf("second SoftDelete = %v, want NotFoundError", err)
	}
}

func TestCountReferencesDistinctProducts(t *testing.T) {
	_, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	dia := testutil.SeedDiamond(t, db)
	line := func(m *models.Material, idx int) models.CompositionLine {
		return models.CompositionLine{MaterialKind: m.Kind, MaterialRef: m.ID, VariantID: m.Variants[idx].ID, VariantIndex: idx, Quantity: testutil.Dec("1")}
	}

	testutil.SeedProduct(t, db, "A", line(gold, 0), line(gold, 1), line(dia, 0))
	testutil.SeedProduct(t, db, "B", line(gold, 1))
	c := testutil.SeedProduct(t, db, "C", line(gold, 0))
	db.Model(&models.Product{}).Where("id = ?", c.ID).Update("is_deleted", true)

	g := NewGuard(db, 5*time.Second)
	for _, tt := range []struct {
		id   uint
		want int64
	}{{gold.ID, 2}, {dia.ID, 1}, {999, 0}} {
		got, err := g.CountReferences(context.Background(), nil, tt.id)
		if err != nil {
			t.Fatalf("CountReferences(%d): %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("CountReferences(%d) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestCountReferencesRunsUnderTimeout(t *testing.T) {
	db := testutil.DB(t)
	gold := testutil.SeedGold22K(t, db)
	seen := testutil.TrackDeadlines(t, db)

	if _, err := NewGuard(db, 5*time.Second).CountReferences(context.Background(), nil, gold.ID); err != nil {
		t.Fatalf("CountReferences: %v", err)
	}
	if got := seen(); len(got) != 1 || !got[0] {
		t.Fatalf("deadlines = %v, want one call with a deadline", got)
	}
}

func TestSnapshotIncludesDeleted(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	dia := testutil.SeedDiamond(t, db)
	ctx := context.Background()
	if err := s.SoftDelete(ctx, dia.ID, admin); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	snap, err := s.Snapshot(ctx, []uint{gold.ID, dia.ID, 999})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("snapshot holds %d materials, want 2", snap.Len())
	}
	if m, ok := snap.Material(dia.ID); !ok || !m.IsDeleted {
		t.Fatalf("deleted diamond missing or live: %v %+v", ok, m)
	}
}

func isValidation(err error) bool {
	var v *apperr.ValidationError
	return errors.As(err, &v)
}

func isDuplicate(field string) func(error) bool {
	return func(err error) bool {
		var d *apperr.DuplicateCodeError
		return errors.As(err, &d) && d.Field == field
	}
}

func TestRevertPriceChange(t *testing.T) {
	s, db := newService(t)
	gold := testutil.SeedGold22K(t, db)
	ctx := context.Background()

	upd, err := s.UpdateVariantPrice(ctx, gold.ID, 0, testutil.Dec("6400"), admin)
	if err != nil {
		t.Fatalf("UpdateVariantPrice: %v", err)
	}

	rev, err := s.RevertPriceChange(ctx, upd.Entry.ID, admin)
	if err != nil {
		t.Fatalf("RevertPriceChange: %v", err)
	}
	if !rev.Material.Variants[0].UnitPrice.Equal(testutil.Dec("6000")) {
		t.Fatalf("reverted price = %s", rev.Material.Variants[0].UnitPrice)
	}

	entries := history(t, db, gold.ID)
	if len(entries) != 2 {
		t.Fatalf("history = %d entries, want 2", len(entries))
	}
	if !entries[0].OldPrice.Equal(testutil.Dec("6400")) || !entries[0].NewPrice.Equal(testutil.Dec("6000")) {
		t.Fatalf("revert entry = %s -> %s", entries[0].OldPrice, entries[0].NewPrice)
	}

	var nf *apperr.NotFoundError
	if _, err := s.RevertPriceChange(ctx, 999, admin); !errors.As(err, &nf) {
		t.Fatalf("unknown entry = %v, want NotFoundError", err)
	}
}
