package excel

import "testing"

func TestDedupeSumsRepeatedPairs(t *testing.T) {
	lines := []BOMLine{
		{ProductCode: "P1", MaterialCode: "M1", MaterialName: "螺丝", Quantity: 4, Unit: "个"},
		{ProductCode: "P1", MaterialCode: "M2", MaterialName: "外壳", Quantity: 1, Unit: "个"},
		{ProductCode: "P1", MaterialCode: "M1", MaterialName: "螺丝", Quantity: 6, Unit: "个"},
	}

	products, materials, aggregated := Dedupe(lines)

	if len(products) != 1 || products[0].Code != "P1" {
		t.Fatalf("products = %+v, want single P1", products)
	}
	if len(materials) != 2 {
		t.Fatalf("len(materials) = %d, want 2", len(materials))
	}
	if len(aggregated) != 2 {
		t.Fatalf("len(aggregated) = %d, want 2", len(aggregated))
	}
	if aggregated[0].MaterialCode != "M1" || aggregated[0].Quantity != 10 {
		t.Errorf("aggregated[0] = %+v, want M1 qty 10", aggregated[0])
	}
}

func TestDedupeFirstSeenWins(t *testing.T) {
	lines := []BOMLine{
		{ProductCode: "P1", MaterialCode: "M1", MaterialName: "首见名称", Spec: "A", Quantity: 1},
		{ProductCode: "P1", MaterialCode: "M1", MaterialName: "后出现的名称", Spec: "B", Quantity: 1},
	}

	_, materials, _ := Dedupe(lines)
	if len(materials) != 1 {
		t.Fatalf("len(materials) = %d, want 1", len(materials))
	}
	if materials[0].Name != "首见名称" || materials[0].Spec != "A" {
		t.Errorf("material = %+v, want first-seen name/spec", materials[0])
	}
}

func TestDedupePreservesOrder(t *testing.T) {
	lines := []BOMLine{
		{ProductCode: "P2", MaterialCode: "M3", Quantity: 1},
		{ProductCode: "P1", MaterialCode: "M1", Quantity: 1},
		{ProductCode: "P2", MaterialCode: "M2", Quantity: 1},
	}

	products, materials, aggregated := Dedupe(lines)

	if products[0].Code != "P2" || products[1].Code != "P1" {
		t.Errorf("product order = %+v, want P2 then P1", products)
	}
	wantMats := []string{"M3", "M1", "M2"}
	for i, m := range materials {
		if m.Code != wantMats[i] {
			t.Errorf("materials[%d] = %s, want %s", i, m.Code, wantMats[i])
		}
	}
	if len(aggregated) != 3 {
		t.Errorf("len(aggregated) = %d, want 3", len(aggregated))
	}
}

func TestParseAndDedupeRepeatedOccurrence(t *testing.T) {
	// M1 在两个分支各出现一次（用量2和1），M2 挂在第一个M1分支下，
	// M3 用量为0不参与
	grid := [][]string{
		{"层级", "物料编码", "物料名称", "用量"},
		{"1", "ROOT", "成品A", ""},
		{"2", "M1", "组件", "2"},
		{"3", "M2", "零件", "5"},
		{"2", "M3", "弃用", "0"},
		{"2", "M1", "组件", "1"},
	}
	fields := FieldMap{
		FieldLevel:        0,
		FieldMaterialCode: 1,
		FieldMaterialName: 2,
		FieldQuantity:     3,
	}

	lines, err := ParseRows(grid, 0, fields, Identity{}, nil)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}

	_, _, aggregated := Dedupe(lines)

	want := map[string]float64{"M1": 3, "M2": 10}
	if len(aggregated) != len(want) {
		t.Fatalf("aggregated = %+v, want M1 and M2 only", aggregated)
	}
	for _, line := range aggregated {
		if line.ProductCode != "ROOT" {
			t.Errorf("product = %q, want ROOT", line.ProductCode)
		}
		if line.Quantity != want[line.MaterialCode] {
			t.Errorf("%s quantity = %v, want %v", line.MaterialCode, line.Quantity, want[line.MaterialCode])
		}
	}
}

func TestDedupeDefaultsUnit(t *testing.T) {
	lines := []BOMLine{
		{ProductCode: "P1", MaterialCode: "M1", Quantity: 1},
	}

	products, materials, _ := Dedupe(lines)
	if products[0].Unit != DefaultUnit {
		t.Errorf("product unit = %q, want %q", products[0].Unit, DefaultUnit)
	}
	if materials[0].Unit != DefaultUnit {
		t.Errorf("material unit = %q, want %q", materials[0].Unit, DefaultUnit)
	}
}
