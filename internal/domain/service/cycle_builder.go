package service

import "triarb/internal/domain/model"

// BuildCycles 枚举所有三币种组合（C(n,3)），每个组合检查两个方向：
// c1→c2→c3→c1 与 c1→c3→c2→c1。三条腿都能在目录中找到（任一方向）才接受。
// 币种按字典序枚举，结果确定、可重复。
//
// anchors lists preferred start currencies in priority order; a cycle that
// contains one is rotated to start there so the start amount is denominated in
// it. Rotation keeps the travel direction.
func BuildCycles(cat *Catalog, anchors ...string) []model.Cycle {
	if cat == nil {
		return nil
	}
	cur := cat.Currencies()
	var out []model.Cycle

	for i := 0; i < len(cur); i++ {
		for j := i + 1; j < len(cur); j++ {
			if !cat.Linked(cur[i], cur[j]) {
				continue
			}
			for k := j + 1; k < len(cur); k++ {
				c1, c2, c3 := cur[i], cur[j], cur[k]
				if cyc, ok := resolveCycle(cat, c1, c2, c3); ok {
					out = append(out, rotateToAnchor(cyc, anchors))
				}
				if cyc, ok := resolveCycle(cat, c1, c3, c2); ok {
					out = append(out, rotateToAnchor(cyc, anchors))
				}
			}
		}
	}
	return out
}

func resolveCycle(cat *Catalog, c1, c2, c3 string) (model.Cycle, bool) {
	path := [3]string{c1, c2, c3}
	cyc := model.Cycle{Currencies: path}
	for i := range path {
		leg, ok := cat.Lookup(path[i], path[(i+1)%3])
		if !ok {
			return model.Cycle{}, false
		}
		cyc.Legs[i] = leg
	}
	return cyc, true
}

func rotateToAnchor(c model.Cycle, anchors []string) model.Cycle {
	for _, a := range anchors {
		for shift, cur := range c.Currencies {
			if cur != a {
				continue
			}
			if shift == 0 {
				return c
			}
			var r model.Cycle
			for i := 0; i < 3; i++ {
				r.Currencies[i] = c.Currencies[(i+shift)%3]
				r.Legs[i] = c.Legs[(i+shift)%3]
			}
			return r
		}
	}
	return c
}
