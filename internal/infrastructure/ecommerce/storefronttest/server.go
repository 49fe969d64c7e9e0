// Package storefronttest provides an in-memory fake of the storefront admin GraphQL API
// for adapter and engine tests.
package storefronttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// DefaultToken is the admin token the fake accepts unless overridden
const DefaultToken = "shpat_test_token"

const tokenHeader = "X-Storefront-Access-Token"

// Failure is an injected failure for the next call of an operation
type Failure struct {
	// Status, when non-zero, fails the call at the HTTP level
	Status int
	// Code is the GraphQL error code (top-level) or user error code
	Code    string
	Message string
	// UserError reports the failure as a mutation user error instead of a top-level error
	UserError bool
	// Concurrent, when set, is applied before the failure is returned, as if another
	// writer created the variant or the call partially applied
	Concurrent *VariantSeed
}

// VariantSeed describes a variant inserted outside the API
type VariantSeed struct {
	ProductID string
	SKU       string
	Finish    string
	Edition   string
}

// Variant is the fake's view of a product variant
type Variant struct {
	ID        string
	ProductID string
	SKU       string
	Price     string
	Finish    string
	Edition   string
	ItemID    string
	Tracked   bool
	// Levels holds the available quantity per activated location
	Levels map[string]int
}

// Product is the fake's view of a product
type Product struct {
	ID       string
	Title    string
	Handle   string
	Tags     []string
	Variants []*Variant
}

// Server is a fake storefront admin API
type Server struct {
	*httptest.Server
	Token string

	mu       sync.Mutex
	seq      int
	products map[string]*Product
	order    []string
	calls    map[string]int
	failures map[string][]Failure
}

// New starts a fake storefront server closed at the end of the test
func New(t testing.TB) *Server {
	s := &Server{
		Token:    DefaultToken,
		products: make(map[string]*Product),
		calls:    make(map[string]int),
		failures: make(map[string][]Failure),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// FailNext queues a failure for the next call of op
func (s *Server) FailNext(op string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], f)
}

// Calls returns how many times op was received
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// ProductCount returns the number of products
func (s *Server) ProductCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products)
}

// ProductByHandle returns a copy of the product with the handle
func (s *Server) ProductByHandle(handle string) (Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.findByHandle(handle); p != nil {
		return copyProduct(p), true
	}
	return Product{}, false
}

// Variants returns copies of a product's variants
func (s *Server) Variants(productID string) []Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil
	}
	return copyProduct(p).variants()
}

// Variant returns a copy of the variant with the id
func (s *Server) Variant(id string) (Variant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v := s.findVariant(id); v != nil {
		return copyVariant(v), true
	}
	return Variant{}, false
}

// Quantity returns the available quantity of a variant at a location
func (s *Server) Quantity(variantID, locationID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.findVariant(variantID)
	if v == nil {
		return 0, false
	}
	q, ok := v.Levels[locationID]
	return q, ok
}

// DeleteProduct removes a product as if a merchant deleted it
func (s *Server) DeleteProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// AddVariant inserts a variant directly, bypassing the API
func (s *Server) AddVariant(productID, sku, finish, edition string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return ""
	}
	return s.newVariant(p, sku, finish, edition).ID
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

type request struct {
	OperationName string          `json:"operationName"`
	Variables     json.RawMessage `json:"variables"`
}

type gqlError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type userError struct {
	Field   []string `json:"field,omitempty"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/graphql.json") {
		http.NotFound(w, r)
		return
	}
	if r.Header.Get(tokenHeader) != s.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"errors": "[API] Invalid API key or access token"})
		return
	}
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.OperationName]++

	if f, ok := s.nextFailure(req.OperationName); ok {
		if c := f.Concurrent; c != nil {
			if p, ok := s.products[c.ProductID]; ok {
				s.newVariant(p, c.SKU, c.Finish, c.Edition)
			}
		}
		switch {
		case f.Status != 0:
			writeJSON(w, f.Status, map[string]any{"errors": f.Message})
		case f.UserError:
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
				mutationField(req.OperationName): map[string]any{
					"userErrors": []userError{{Message: f.Message, Code: f.Code}},
				},
			}})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"errors": []gqlError{{
				Message:    f.Message,
				Extensions: map[string]any{"code": f.Code},
			}}})
		}
		return
	}

	data, err := s.dispatch(req)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"errors": []gqlError{{Message: err.Error()}}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (s *Server) nextFailure(op string) (Failure, bool) {
	queue := s.failures[op]
	if len(queue) == 0 {
		return Failure{}, false
	}
	s.failures[op] = queue[1:]
	return queue[0], true
}

func (s *Server) dispatch(req request) (map[string]any, error) {
	switch req.OperationName {
	case "Shop":
		return map[string]any{"shop": map[string]any{"name": "Fake Shop"}}, nil
	case "Product", "ProductVariants":
		var vars struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(req.Variables, &vars); err != nil {
			return nil, err
		}
		return map[string]any{"product": s.productJSON(s.products[vars.ID])}, nil
	case "ProductByHandle":
		var vars struct {
			Handle string `json:"handle"`
		}
		if err := json.Unmarshal(req.Variables, &vars); err != nil {
			return nil, err
		}
		return map[string]any{"productByHandle": s.productJSON(s.findByHandle(vars.Handle))}, nil
	case "ProductCreate":
		return s.productCreate(req.Variables)
	case "ProductVariantsBulkCreate":
		return s.variantsBulkCreate(req.Variables)
	case "ProductVariantsBulkUpdate":
		return s.variantsBulkUpdate(req.Variables)
	case "ProductVariant":
		var vars struct {
			ID         string `json:"id"`
			LocationID string `json:"locationId"`
		}
		if err := json.Unmarshal(req.Variables, &vars); err != nil {
			return nil, err
		}
		v := s.findVariant(vars.ID)
		if v == nil {
			return map[string]any{"productVariant": nil}, nil
		}
		return map[string]any{"productVariant": variantJSON(v, vars.LocationID)}, nil
	case "InventoryItemUpdate":
		return s.inventoryItemUpdate(req.Variables)
	case "InventoryActivate":
		return s.inventoryActivate(req.Variables)
	case "InventorySetQuantities":
		return s.inventorySetQuantities(req.Variables)
	default:
		return nil, fmt.Errorf("unknown operation %q", req.OperationName)
	}
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

type optionValue struct {
	OptionName string `json:"optionName"`
	Name       string `json:"name"`
}

type variantInput struct {
	ID            string        `json:"id"`
	OptionValues  []optionValue `json:"optionValues"`
	Price         string        `json:"price"`
	InventoryItem *struct {
		SKU     string `json:"sku"`
		Tracked *bool  `json:"tracked"`
	} `json:"inventoryItem"`
}

func (in variantInput) tuple() (finish, edition string) {
	for _, o := range in.OptionValues {
		switch strings.ToLower(o.OptionName) {
		case "finish":
			finish = o.Name
		case "edition":
			edition = o.Name
		}
	}
	return finish, edition
}

func (s *Server) productCreate(raw json.RawMessage) (map[string]any, error) {
	var vars struct {
		Product struct {
			Title          string   `json:"title"`
			Handle         string   `json:"handle"`
			Tags           []string `json:"tags"`
			ProductOptions []struct {
				Name   string        `json:"name"`
				Values []optionValue `json:"values"`
			} `json:"productOptions"`
		} `json:"product"`
	}
	if err := json.Unmarshal(raw, &vars); err != nil {
		return nil, err
	}
	in := vars.Product
	if s.findByHandle(in.Handle) != nil {
		return map[string]any{"productCreate": map[string]any{
			"product":    nil,
			"userErrors": []userError{{Field: []string{"handle"}, Message: "Handle has already been taken", Code: "TAKEN"}},
		}}, nil
	}

	s.seq++
	p := &Product{
		ID:     fmt.Sprintf("gid://storefront/Product/%d", s.seq),
		Title:  in.Title,
		Handle: in.Handle,
		Tags:   in.Tags,
	}
	s.products[p.ID] = p
	s.order = append(s.order, p.ID)

	// The platform creates a standalone variant holding the first value of every option
	finish, edition := "", ""
	for _, o := range in.ProductOptions {
		if len(o.Values) == 0 {
			continue
		}
		switch strings.ToLower(o.Name) {
		case "finish":
			finish = o.Values[0].Name
		case "edition":
			edition = o.Values[0].Name
		}
	}
	s.newVariant(p, "", finish, edition)

	return map[string]any{"productCreate": map[string]any{
		"product":    s.productJSON(p),
		"userErrors": []userError{},
	}}, nil
}

func (s *Server) variantsBulkCreate(raw json.RawMessage) (map[string]any, error) {
	var vars struct {
		ProductID string         `json:"productId"`
		Strategy  string         `json:"strategy"`
		Variants  []variantInput `json:"variants"`
	}
	if err := json.Unmarshal(raw, &vars); err != nil {
		return nil, err
	}
	result := func(created []*Variant, errs []userError) map[string]any {
		nodes := make([]map[string]any, 0, len(created))
		for _, v := range created {
			nodes = append(nodes, variantJSON(v, ""))
		}
		if errs == nil {
			errs = []userError{}
		}
		return map[string]any{"productVariantsBulkCreate": map[string]any{
			"productVariants": nodes,
			"userErrors":      errs,
		}}
	}

	p, ok := s.products[vars.ProductID]
	if !ok {
		return result(nil, []userError{{Field: []string{"productId"}, Message: "Product does not exist", Code: "PRODUCT_DOES_NOT_EXIST"}}), nil
	}

	existing := p.Variants
	if vars.Strategy == "REMOVE_STANDALONE_VARIANT" && len(p.Variants) == 1 && p.Variants[0].SKU == "" {
		existing = nil
	}

	// Validate the whole batch first; the platform applies it all or nothing
	seen := make(map[string]bool)
	for _, v := range existing {
		seen[tupleKey(v.Finish, v.Edition)] = true
	}
	for i, in := range vars.Variants {
		finish, edition := in.tuple()
		key := tupleKey(finish, edition)
		if seen[key] {
			return result(nil, []userError{{
				Field:   []string{"variants", fmt.Sprint(i)},
				Message: fmt.Sprintf("The variant '%s / %s' already exists.", finish, edition),
				Code:    "VARIANT_ALREADY_EXISTS",
			}}), nil
		}
		seen[key] = true
	}

	p.Variants = existing
	created := make([]*Variant, 0, len(vars.Variants))
	for _, in := range vars.Variants {
		finish, edition := in.tuple()
		sku := ""
		if in.InventoryItem != nil {
			sku = in.InventoryItem.SKU
		}
		v := s.newVariant(p, sku, finish, edition)
		v.Price = in.Price
		if in.InventoryItem != nil && in.InventoryItem.Tracked != nil {
			v.Tracked = *in.InventoryItem.Tracked
		}
		created = append(created, v)
	}
	return result(created, nil), nil
}

func (s *Server) variantsBulkUpdate(raw json.RawMessage) (map[string]any, error) {
	var vars struct {
		ProductID string         `json:"productId"`
		Variants  []variantInput `json:"variants"`
	}
	if err := json.Unmarshal(raw, &vars); err != nil {
		return nil, err
	}
	wrap := func(nodes []map[string]any, errs []userError) map[string]any {
		if errs == nil {
			errs = []userError{}
		}
		return map[string]any{"productVariantsBulkUpdate": map[string]any{
			"productVariants": nodes,
			"userErrors":      errs,
		}}
	}
	p, ok := s.products[vars.ProductID]
	if !ok {
		return wrap(nil, []userError{{Message: "Product does not exist", Code: "PRODUCT_DOES_NOT_EXIST"}}), nil
	}
	nodes := make([]map[string]any, 0, len(vars.Variants))
	for _, in := range vars.Variants {
		var target *Variant
		for _, v := range p.Variants {
			if v.ID == in.ID {
				target = v
			}
		}
		if target == nil {
			return wrap(nil, []userError{{Message: "Product variant does not exist", Code: "PRODUCT_VARIANT_DOES_NOT_EXIST"}}), nil
		}
		if in.Price != "" {
			target.Price = in.Price
		}
		if in.InventoryItem != nil {
			if in.InventoryItem.SKU != "" {
				target.SKU = in.InventoryItem.SKU
			}
			if in.InventoryItem.Tracked != nil {
				target.Tracked = *in.InventoryItem.Tracked
			}
		}
		nodes = append(nodes, variantJSON(target, ""))
	}
	return wrap(nodes, nil), nil
}

func (s *Server) inventoryItemUpdate(raw json.RawMessage) (map[string]any, error) {
	var vars struct {
		ID    string `json:"id"`
		Input struct {
			Tracked *bool `json:"tracked"`
		} `json:"input"`
	}
	if err := json.Unmarshal(raw, &vars); err != nil {
		return nil, err
	}
	v := s.findByItem(vars.ID)
	if v == nil {
		return map[string]any{"inventoryItemUpdate": map[string]any{
			"userErrors": []userError{{Message: "Inventory item does not exist", Code: "NOT_FOUND"}},
		}}, nil
	}
	if vars.Input.Tracked != nil {
		v.Tracked = *vars.Input.Tracked
	}
	return map[string]any{"inventoryItemUpdate": map[string]any{
		"inventoryItem": map[string]any{"id": v.ItemID, "tracked": v.Tracked},
		"userErrors":    []userError{},
	}}, nil
}

func (s *Server) inventoryActivate(raw json.RawMessage) (map[string]any, error) {
	var vars struct {
		InventoryItemID string `json:"inventoryItemId"`
		LocationID      string `json:"locationId"`
	}
	if err := json.Unmarshal(raw, &vars); err != nil {
		return nil, err
	}
	v := s.findByItem(vars.InventoryItemID)
	if v == nil {
		return map[string]any{"inventoryActivate": map[string]any{
			"userErrors": []userError{{Message: "Inventory item does not exist", Code: "NOT_FOUND"}},
		}}, nil
	}
	if _, ok := v.Levels[vars.LocationID]; !ok {
		v.Levels[vars.LocationID] = 0
	}
	return map[string]any{"inventoryActivate": map[string]any{
		"inventoryLevel": map[string]any{"id": levelID(v, vars.LocationID)},
		"userErrors":     []userError{},
	}}, nil
}

func (s *Server) inventorySetQuantities(raw json.RawMessage) (map[string]any, error) {
	var vars struct {
		Input struct {
			Name       string `json:"name"`
			Quantities []struct {
				InventoryItemID string `json:"inventoryItemId"`
				LocationID      string `json:"locationId"`
				Quantity        int    `json:"quantity"`
			} `json:"quantities"`
		} `json:"input"`
	}
	if err := json.Unmarshal(raw, &vars); err != nil {
		return nil, err
	}
	fail := func(code, msg string) map[string]any {
		return map[string]any{"inventorySetQuantities": map[string]any{
			"userErrors": []userError{{Message: msg, Code: code}},
		}}
	}
	if vars.Input.Name != "available" {
		return fail("INVALID_NAME", "quantity name must be available"), nil
	}
	for _, q := range vars.Input.Quantities {
		v := s.findByItem(q.InventoryItemID)
		if v == nil {
			return fail("NOT_FOUND", "Inventory item does not exist"), nil
		}
		if _, ok := v.Levels[q.LocationID]; !ok {
			return fail("ITEM_NOT_STOCKED_AT_LOCATION", "The item is not stocked at the location"), nil
		}
	}
	for _, q := range vars.Input.Quantities {
		s.findByItem(q.InventoryItemID).Levels[q.LocationID] = q.Quantity
	}
	return map[string]any{"inventorySetQuantities": map[string]any{
		"inventoryAdjustmentGroup": map[string]any{"reason": "correction"},
		"userErrors":               []userError{},
	}}, nil
}

// ---------------------------------------------------------------------------
// State helpers (callers hold s.mu)
// ---------------------------------------------------------------------------

func (s *Server) newVariant(p *Product, sku, finish, edition string) *Variant {
	s.seq++
	v := &Variant{
		ID:        fmt.Sprintf("gid://storefront/ProductVariant/%d", s.seq),
		ProductID: p.ID,
		SKU:       sku,
		Price:     "0.00",
		Finish:    finish,
		Edition:   edition,
		ItemID:    fmt.Sprintf("gid://storefront/InventoryItem/%d", s.seq),
		Levels:    make(map[string]int),
	}
	p.Variants = append(p.Variants, v)
	return v
}

func (s *Server) findByHandle(handle string) *Product {
	for _, id := range s.order {
		if p := s.products[id]; p != nil && p.Handle == handle {
			return p
		}
	}
	return nil
}

func (s *Server) findVariant(id string) *Variant {
	for _, p := range s.products {
		for _, v := range p.Variants {
			if v.ID == id {
				return v
			}
		}
	}
	return nil
}

func (s *Server) findByItem(itemID string) *Variant {
	for _, p := range s.products {
		for _, v := range p.Variants {
			if v.ItemID == itemID {
				return v
			}
		}
	}
	return nil
}

func (s *Server) productJSON(p *Product) any {
	if p == nil {
		return nil
	}
	nodes := make([]map[string]any, 0, len(p.Variants))
	for _, v := range p.Variants {
		nodes = append(nodes, variantJSON(v, ""))
	}
	return map[string]any{
		"id":       p.ID,
		"title":    p.Title,
		"handle":   p.Handle,
		"tags":     p.Tags,
		"variants": map[string]any{"nodes": nodes},
	}
}

func variantJSON(v *Variant, locationID string) map[string]any {
	item := map[string]any{"id": v.ItemID, "tracked": v.Tracked, "inventoryLevel": nil}
	if _, ok := v.Levels[locationID]; ok && locationID != "" {
		item["inventoryLevel"] = map[string]any{"id": levelID(v, locationID)}
	}
	return map[string]any{
		"id":    v.ID,
		"sku":   v.SKU,
		"price": v.Price,
		"selectedOptions": []map[string]any{
			{"name": "Finish", "value": v.Finish},
			{"name": "Edition", "value": v.Edition},
		},
		"inventoryItem": item,
		"product":       map[string]any{"id": v.ProductID},
	}
}

func levelID(v *Variant, locationID string) string {
	return v.ItemID + "?location=" + locationID
}

func tupleKey(finish, edition string) string {
	return strings.ToLower(strings.TrimSpace(finish)) + "|" + strings.ToLower(strings.TrimSpace(edition))
}

func mutationField(op string) string {
	if op == "" {
		return op
	}
	return strings.ToLower(op[:1]) + op[1:]
}

func copyProduct(p *Product) Product {
	out := *p
	out.Variants = make([]*Variant, 0, len(p.Variants))
	for _, v := range p.Variants {
		c := copyVariant(v)
		out.Variants = append(out.Variants, &c)
	}
	return out
}

func copyVariant(v *Variant) Variant {
	out := *v
	out.Levels = make(map[string]int, len(v.Levels))
	for k, q := range v.Levels {
		out.Levels[k] = q
	}
	return out
}

func (p Product) variants() []Variant {
	out := make([]Variant, 0, len(p.Variants))
	for _, v := range p.Variants {
		out = append(out, *v)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
