package portfolio

import (
	"bytes"
	"encoding/json"
)

// 结构守卫是外部存储返回的 JSON 进入五种已知负载类型的唯一入口。
// 对象类负载（hero/about）只要求是一个非空（non-null）JSON 对象，
// 因为其字段全部可选——空对象 {} 被视为"存在但为空"，照常渲染。
// 数组类负载（projects/experience/skills）要求锚点字段存在且为数组，
// 缺失锚点的 {} 视为负载不存在。

// IsHeroData 判断负载是否可作为 hero 数据。
func IsHeroData(raw json.RawMessage) bool {
	return isJSONObject(raw)
}

// IsAboutData 判断负载是否可作为 about 数据。
func IsAboutData(raw json.RawMessage) bool {
	return isJSONObject(raw)
}

// IsProjectsData 判断负载是否携带 projects 数组。
func IsProjectsData(raw json.RawMessage) bool {
	return hasArrayField(raw, "projects")
}

// IsExperienceData 判断负载是否携带 experiences 数组。
func IsExperienceData(raw json.RawMessage) bool {
	return hasArrayField(raw, "experiences")
}

// IsSkillsData 判断负载是否携带 skills 数组。
func IsSkillsData(raw json.RawMessage) bool {
	return hasArrayField(raw, "skills")
}

// GuardFor 返回指定区块类型的结构守卫；未知类型返回恒假守卫。
func GuardFor(t SectionType) func(json.RawMessage) bool {
	switch t {
	case SectionHero:
		return IsHeroData
	case SectionAbout:
		return IsAboutData
	case SectionProjects:
		return IsProjectsData
	case SectionExperience:
		return IsExperienceData
	case SectionSkills:
		return IsSkillsData
	default:
		return func(json.RawMessage) bool { return false }
	}
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}

func hasArrayField(raw json.RawMessage, key string) bool {
	if !isJSONObject(raw) {
		return false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	field, ok := probe[key]
	if !ok {
		return false
	}
	trimmed := bytes.TrimSpace(field)
	return len(trimmed) > 0 && trimmed[0] == '['
}
