package excel

// Product 去重后的产品记录。缺省字段在建档时补默认值。
type Product struct {
	Code string
	Name string
	Unit string
}

// Material 去重后的物料记录，名称/规格/单位以首次出现为准
type Material struct {
	Code string
	Name string
	Spec string
	Unit string
}

// AggregatedLine 聚合后的BOM行：同一(产品,物料)对在树上多处出现时用量求和
type AggregatedLine struct {
	ProductCode  string
	MaterialCode string
	Quantity     float64
}

// Dedupe 把展平行折叠成唯一的产品/物料记录和聚合BOM行。
// 输出保持首次出现的顺序，保证汇总报告和远端调用顺序稳定。
func Dedupe(lines []BOMLine) ([]Product, []Material, []AggregatedLine) {
	var products []Product
	productIdx := make(map[string]int)

	var materials []Material
	materialIdx := make(map[string]int)

	var aggregated []AggregatedLine
	lineIdx := make(map[[2]string]int)

	for _, line := range lines {
		if line.ProductCode != "" {
			if _, ok := productIdx[line.ProductCode]; !ok {
				productIdx[line.ProductCode] = len(products)
				products = append(products, Product{
					Code: line.ProductCode,
					Name: line.ProductName,
					Unit: DefaultUnit,
				})
			}
		}

		if _, ok := materialIdx[line.MaterialCode]; !ok {
			materialIdx[line.MaterialCode] = len(materials)
			unit := line.Unit
			if unit == "" {
				unit = DefaultUnit
			}
			materials = append(materials, Material{
				Code: line.MaterialCode,
				Name: line.MaterialName,
				Spec: line.Spec,
				Unit: unit,
			})
		}

		key := [2]string{line.ProductCode, line.MaterialCode}
		if idx, ok := lineIdx[key]; ok {
			aggregated[idx].Quantity += line.Quantity
		} else {
			lineIdx[key] = len(aggregated)
			aggregated = append(aggregated, AggregatedLine{
				ProductCode:  line.ProductCode,
				MaterialCode: line.MaterialCode,
				Quantity:     line.Quantity,
			})
		}
	}

	return products, materials, aggregated
}
