//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/pgEdge/warehouse-loader/internal/docstore"
	"github.com/pgEdge/warehouse-loader/internal/logging"
	"github.com/pgEdge/warehouse-loader/internal/model"
	"github.com/pgEdge/warehouse-loader/internal/validate"
)

// Reference data
var productCategories = []string{
	"Electronics", "Clothing", "Home", "Garden", "Sports",
	"Toys", "Books", "Beauty", "Grocery", "Office",
}
var productSuffixes = []string{"Pro", "Lite", "Max", "Ultra", ""}
var addressTypes = []string{"home", "work", "shipping"}
var contactMethods = []string{"email", "sms", "none"}
var browseActions = []string{"view", "search", "add_to_cart", "remove_from_cart"}
var cartStatuses = []string{"active", "abandoned", "converted"}

// Draw weights aligned with validate.PaymentMethods and validate.Channels.
var paymentWeights = []int{40, 25, 15, 12, 8}
var channelWeights = []int{40, 30, 25, 5}

// Transaction mix constants.
const (
	taxRate             = 0.08
	returnProbability   = 0.05
	discountProbability = 0.30
	maxDiscountPercent  = 30.0
	minUnitPrice        = 5.0
	maxUnitPrice        = 500.0
	meanItemsPerTxn     = 3.0
	stddevItemsPerTxn   = 2.0
	inactiveProbability = 0.10
)

// Transactions and their items land in chunks of this many transactions.
const seedChunk = 500

// Params sets the volumes and time window for one seeded batch.
type Params struct {
	Customers    int
	Products     int
	Locations    int
	Transactions int

	// Start and End bound customer creation and transaction times.
	Start time.Time
	End   time.Time

	BatchID string
	Source  string
}

// Result reports what one seed run staged.
type Result struct {
	Customers    int   `json:"customers"`
	Products     int   `json:"products"`
	Locations    int   `json:"locations"`
	Transactions int   `json:"transactions"`
	Items        int   `json:"items"`
	Inventory    int   `json:"inventory"`
	StagedRows   int64 `json:"staged_rows"`
	Documents    int64 `json:"documents"`
}

// RecordStager lands generated records in the staging tables.
// *staging.Store implements it.
type RecordStager interface {
	InsertRecords(ctx context.Context, records []model.Record) (int64, error)
}

// DocumentInserter lands sample documents. *docstore.Store implements it.
type DocumentInserter interface {
	InsertMany(ctx context.Context, collection string, docs []any) (int64, error)
}

// Seeder stages one synthetic retail batch: dimension and fact rows in
// the staging tables plus sample activity documents so every collection
// carries its contract shape.
type Seeder struct {
	faker   *Faker
	staging RecordStager
	docs    DocumentInserter
}

// NewSeeder creates a Seeder. docs may be nil to skip document samples.
func NewSeeder(stg RecordStager, docs DocumentInserter) *Seeder {
	return &Seeder{faker: NewFaker(), staging: stg, docs: docs}
}

// NewSeederWithSeed creates a Seeder with a fixed random seed for
// reproducible batches.
func NewSeederWithSeed(stg RecordStager, docs DocumentInserter, seed uint64) *Seeder {
	return &Seeder{faker: NewFakerWithSeed(seed), staging: stg, docs: docs}
}

// Seed generates and stages one batch. Dimensions land first so
// transaction times can respect customer creation, then transactions
// with their items in chunks, then inventory snapshots.
func (s *Seeder) Seed(ctx context.Context, p Params) (*Result, error) {
	if p.Customers < 1 || p.Products < 1 || p.Locations < 1 {
		return nil, fmt.Errorf("seed requires at least one customer, product, and location")
	}
	if p.End.Before(p.Start) {
		return nil, fmt.Errorf("seed window end %s precedes start %s",
			p.End.Format("2006-01-02"), p.Start.Format("2006-01-02"))
	}

	log := logging.WithBatch(p.BatchID, p.Source)
	log.Info().
		Int("customers", p.Customers).
		Int("products", p.Products).
		Int("locations", p.Locations).
		Int("transactions", p.Transactions).
		Msg("Seeding staging batch")

	customers := s.generateCustomers(p)
	products := s.generateProducts(p)
	locations := s.generateLocations(p)

	res := &Result{
		Customers: len(customers),
		Products:  len(products),
		Locations: len(locations),
	}

	dims := make([]model.Record, 0, len(customers)+len(products)+len(locations))
	dims = append(dims, customers...)
	dims = append(dims, products...)
	dims = append(dims, locations...)
	staged, err := s.staging.InsertRecords(ctx, dims)
	if err != nil {
		return nil, fmt.Errorf("failed to stage dimensions: %w", err)
	}
	res.StagedRows += staged

	if err := s.stageTransactions(ctx, p, customers, products, locations, res); err != nil {
		return nil, err
	}
	if err := s.stageInventory(ctx, p, products, locations, res); err != nil {
		return nil, err
	}

	if s.docs != nil {
		docs, err := s.seedDocuments(ctx, p, customers, products)
		if err != nil {
			return nil, err
		}
		res.Documents = docs
	}

	log.Info().
		Int64("staged_rows", res.StagedRows).
		Int("transactions", res.Transactions).
		Int("items", res.Items).
		Int64("documents", res.Documents).
		Msg("Seed complete")
	return res, nil
}

func (s *Seeder) generateCustomers(p Params) []model.Record {
	records := make([]model.Record, 0, p.Customers)
	for i := 0; i < p.Customers; i++ {
		key := s.faker.UUID()
		first := s.faker.FirstName()
		last := s.faker.LastName()
		created := s.faker.DateRange(p.Start, p.End)

		records = append(records, model.Record{
			Entity:  model.EntityCustomer,
			BatchID: p.BatchID,
			Source:  p.Source,
			Fields: map[string]any{
				"customer_key": key,
				"first_name":   first,
				"last_name":    last,
				"email":        fmt.Sprintf("%s@example.com", emailLocal(first, last, key)),
				"phone":        s.faker.Phone(),
				"is_active":    !s.faker.Chance(inactiveProbability),
				"created_at":   created,
				"addresses":    s.generateAddresses(),
				"preferences": map[string]any{
					"favorite_categories": s.favoriteCategories(),
					"contact_method":      Choose(s.faker, contactMethods),
					"newsletter":          s.faker.Bool(),
				},
			},
		})
	}
	return records
}

func (s *Seeder) generateAddresses() []map[string]any {
	n := s.faker.Int(1, 2)
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, map[string]any{
			"type":        addressTypes[i%len(addressTypes)],
			"street":      s.faker.Street(),
			"city":        s.faker.City(),
			"state":       s.faker.State(),
			"postal_code": s.faker.Zip(),
			"country":     "United States",
			"is_default":  i == 0,
		})
	}
	return out
}

func (s *Seeder) favoriteCategories() []string {
	n := s.faker.Int(1, 3)
	seen := make(map[string]bool, n)
	out := make([]string, 0, n)
	for len(out) < n {
		c := Choose(s.faker, productCategories)
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func (s *Seeder) generateProducts(p Params) []model.Record {
	brands := make([]string, max(1, p.Products/10))
	for i := range brands {
		brands[i] = s.faker.Company()
	}

	records := make([]model.Record, 0, p.Products)
	for i := 0; i < p.Products; i++ {
		key := s.faker.UUID()
		brand := Choose(s.faker, brands)
		category := Choose(s.faker, productCategories)
		unitPrice := s.faker.Price(minUnitPrice, maxUnitPrice)
		costPrice := round2(unitPrice * s.faker.Float64(0.4, 0.8))

		name := strings.TrimSpace(fmt.Sprintf("%s %s %s",
			brand, s.faker.Word(), Choose(s.faker, productSuffixes)))

		records = append(records, model.Record{
			Entity:  model.EntityProduct,
			BatchID: p.BatchID,
			Source:  p.Source,
			Fields: map[string]any{
				"product_key":  key,
				"product_name": Truncate(name, 255),
				"description":  Truncate(s.faker.ProductDescription(), 200),
				"category":     category,
				"subcategory":  category + " " + s.faker.Word(),
				"brand":        brand,
				"supplier":     s.faker.Company(),
				"unit_price":   unitPrice,
				"cost_price":   costPrice,
				"is_active":    !s.faker.Chance(0.05),
				"reviews":      s.generateReviews(p),
				"images":       s.generateImages(key),
			},
		})
	}
	return records
}

func (s *Seeder) generateReviews(p Params) []map[string]any {
	n := s.faker.Int(0, 3)
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, map[string]any{
			"rating":      s.faker.Int(1, 5),
			"review_text": s.faker.Sentence(s.faker.Int(5, 12)),
			"reviewer":    s.faker.Name(),
			"review_date": s.faker.DateRange(p.Start, p.End),
		})
	}
	return out
}

func (s *Seeder) generateImages(productKey string) []string {
	n := s.faker.Int(1, 3)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("https://cdn.example.com/products/%s/%d.jpg", productKey, i+1))
	}
	return out
}

func (s *Seeder) generateLocations(p Params) []model.Record {
	records := make([]model.Record, 0, p.Locations)
	for i := 0; i < p.Locations; i++ {
		records = append(records, model.Record{
			Entity:  model.EntityLocation,
			BatchID: p.BatchID,
			Source:  p.Source,
			Fields: map[string]any{
				"location_key": s.faker.UUID(),
				"country":      s.faker.Country(),
				"region":       s.faker.StateName(),
				"state":        s.faker.State(),
				"city":         s.faker.City(),
				"postal_code":  s.faker.Zip(),
			},
		})
	}
	return records
}

func (s *Seeder) stageTransactions(ctx context.Context, p Params, customers, products, locations []model.Record, res *Result) error {
	if p.Transactions == 0 {
		return nil
	}

	buyers := activeCustomers(customers)
	progress := NewProgressReporter("transactions", int64(p.Transactions),
		int64(max(1, p.Transactions/10)))

	chunk := make([]model.Record, 0, seedChunk*4)
	chunkTxns := 0
	for i := 0; i < p.Transactions; i++ {
		txn, items := s.generateTransaction(p,
			Choose(s.faker, buyers), products, Choose(s.faker, locations))
		chunk = append(chunk, txn)
		chunk = append(chunk, items...)
		chunkTxns++
		res.Transactions++
		res.Items += len(items)

		if chunkTxns >= seedChunk || i == p.Transactions-1 {
			staged, err := s.staging.InsertRecords(ctx, chunk)
			if err != nil {
				return fmt.Errorf("failed to stage transactions: %w", err)
			}
			res.StagedRows += staged
			progress.Update(int64(chunkTxns))
			chunk = chunk[:0]
			chunkTxns = 0
		}
	}
	progress.Done()
	return nil
}

// generateTransaction builds one transaction and its item lines. Line
// totals carry tax so they satisfy the warehouse measure identity
// quantity*unit_price - discount + tax.
func (s *Seeder) generateTransaction(p Params, customer model.Record, products []model.Record, location model.Record) (model.Record, []model.Record) {
	key := s.faker.UUID()

	start := p.Start
	if created, ok := customer.Time("created_at"); ok && created.After(start) {
		start = created
	}
	txTime := s.faker.DateRange(start, p.End.Add(24*time.Hour-time.Second))
	isReturn := s.faker.Chance(returnProbability)

	numItems := int(s.faker.Normal(meanItemsPerTxn, stddevItemsPerTxn))
	if numItems < 1 {
		numItems = 1
	}

	var totalAmount, totalDiscount, totalTax float64
	items := make([]model.Record, 0, numItems)
	for line := 1; line <= numItems; line++ {
		product := Choose(s.faker, products)
		unitPrice, _ := product.Float("unit_price")
		quantity := s.faker.Int(1, 3)

		var discount float64
		if s.faker.Chance(discountProbability) {
			pct := s.faker.Float64(5, maxDiscountPercent)
			discount = round2(unitPrice * pct / 100 * float64(quantity))
		}
		net := round2(unitPrice*float64(quantity) - discount)
		tax := round2(net * taxRate)
		lineTotal := round2(net + tax)

		totalAmount += lineTotal
		totalDiscount += discount
		totalTax += tax

		items = append(items, model.Record{
			Entity:  model.EntityTransactionItem,
			BatchID: p.BatchID,
			Source:  p.Source,
			Fields: map[string]any{
				"transaction_key": key,
				"product_key":     product.NaturalKey(),
				"line_number":     line,
				"quantity":        quantity,
				"unit_price":      unitPrice,
				"discount_amount": discount,
				"tax_amount":      tax,
				"line_total":      lineTotal,
			},
		})
	}

	shipping := 0.0
	if !isReturn {
		shipping = round2(s.faker.Float64(0, 15))
	}

	txn := model.Record{
		Entity:  model.EntityTransaction,
		BatchID: p.BatchID,
		Source:  p.Source,
		Fields: map[string]any{
			"transaction_key":  key,
			"customer_key":     customer.NaturalKey(),
			"location_key":     location.NaturalKey(),
			"transaction_time": txTime,
			"total_amount":     round2(totalAmount),
			"discount_amount":  round2(totalDiscount),
			"tax_amount":       round2(totalTax),
			"shipping_amount":  shipping,
			"payment_method":   ChooseWeighted(s.faker, validate.PaymentMethods, paymentWeights),
			"channel":          ChooseWeighted(s.faker, validate.Channels, channelWeights),
			"is_return":        isReturn,
		},
	}
	return txn, items
}

// stageInventory snapshots every product once, at a random location on
// the final day of the window. Every fifth row omits the reorder fields
// so NULL handling stays exercised.
func (s *Seeder) stageInventory(ctx context.Context, p Params, products, locations []model.Record, res *Result) error {
	records := make([]model.Record, 0, len(products))
	for i, product := range products {
		onHand := s.faker.Int(0, 500)
		fields := map[string]any{
			"product_key":       product.NaturalKey(),
			"location_key":      Choose(s.faker, locations).NaturalKey(),
			"snapshot_date":     p.End,
			"quantity_on_hand":  onHand,
			"quantity_reserved": s.faker.Int(0, min(onHand, 50)),
		}
		if i%5 != 0 {
			fields["reorder_point"] = s.faker.Int(10, 50)
			fields["reorder_quantity"] = s.faker.Int(25, 100)
		}
		records = append(records, model.Record{
			Entity:  model.EntityInventory,
			BatchID: p.BatchID,
			Source:  p.Source,
			Fields:  fields,
		})
	}

	staged, err := s.staging.InsertRecords(ctx, records)
	if err != nil {
		return fmt.Errorf("failed to stage inventory: %w", err)
	}
	res.StagedRows += staged
	res.Inventory = len(records)
	return nil
}

// seedDocuments plants sample browsing sessions and carts. Every fifth
// customer browses and every tenth carries a cart, so even small seeds
// populate both collections.
func (s *Seeder) seedDocuments(ctx context.Context, p Params, customers, products []model.Record) (int64, error) {
	var sessions, carts []any
	for i, c := range customers {
		key := c.NaturalKey()
		if i%5 == 0 {
			sessions = append(sessions, s.browsingSession(p, key, products))
		}
		if i%10 == 0 {
			carts = append(carts, s.cart(p, key, products))
		}
	}

	var total int64
	n, err := s.docs.InsertMany(ctx, docstore.CollectionBrowsingHistory, sessions)
	if err != nil {
		return total, err
	}
	total += n
	n, err = s.docs.InsertMany(ctx, docstore.CollectionCarts, carts)
	if err != nil {
		return total, err
	}
	total += n
	return total, nil
}

func (s *Seeder) browsingSession(p Params, customerKey string, products []model.Record) bson.M {
	start := s.faker.DateRange(p.Start, p.End)
	n := s.faker.Int(2, 6)
	actions := make([]bson.M, 0, n)
	at := start
	for i := 0; i < n; i++ {
		at = at.Add(time.Duration(s.faker.Int(10, 300)) * time.Second)
		actions = append(actions, bson.M{
			"action":      Choose(s.faker, browseActions),
			"product_id":  Choose(s.faker, products).NaturalKey(),
			"occurred_at": at,
		})
	}
	return bson.M{
		"customer_id": customerKey,
		"session_id":  s.faker.UUID(),
		"channel":     Choose(s.faker, validate.Channels),
		"occurred_at": start,
		"actions":     actions,
	}
}

func (s *Seeder) cart(p Params, customerKey string, products []model.Record) bson.M {
	n := s.faker.Int(1, 3)
	items := make([]bson.M, 0, n)
	for i := 0; i < n; i++ {
		product := Choose(s.faker, products)
		price, _ := product.Float("unit_price")
		items = append(items, bson.M{
			"product_id": product.NaturalKey(),
			"quantity":   s.faker.Int(1, 3),
			"unit_price": price,
			"added_at":   s.faker.DateRange(p.Start, p.End),
		})
	}
	at := s.faker.DateRange(p.Start, p.End)
	return bson.M{
		"customer_id": customerKey,
		"status":      Choose(s.faker, cartStatuses),
		"items":       items,
		"created_at":  at,
		"updated_at":  at,
	}
}

// activeCustomers returns the customers eligible to transact, falling
// back to all of them when none are active.
func activeCustomers(customers []model.Record) []model.Record {
	var active []model.Record
	for _, c := range customers {
		if v, ok := c.Bool("is_active"); ok && v {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return customers
	}
	return active
}

// emailLocal builds a collision-free local part from the name and the
// head of the customer key.
func emailLocal(first, last, key string) string {
	clean := func(s string) string {
		var b strings.Builder
		for _, r := range strings.ToLower(s) {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	token := key
	if len(token) > 8 {
		token = token[:8]
	}
	return fmt.Sprintf("%s.%s.%s", clean(first), clean(last), token)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
