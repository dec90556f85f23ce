package portfolio

import "encoding/json"

// Bundle 是对区块列表的规范化视图：每种类型取第一个通过守卫的区块，
// 数组类负载解码为切片（缺失时为空切片而非 nil 语义上的"错误"），
// 对象类负载解码为指针（缺失时为 nil）。
// 所有模板渲染器与编辑器共享同一份提取结果。
type Bundle struct {
	HeroSection       *Section
	AboutData         *AboutData
	ProjectsSection   *Section
	Projects          []Project
	ExperienceSection *Section
	Experiences       []Experience
	SkillsSection     *Section
	Skills            []string
}

// Extract 对区块列表做一次规范化提取。纯函数：相同输入产生相同输出，
// 不修改入参，可安全地在每次渲染时调用。
func Extract(sections []Section) Bundle {
	b := Bundle{
		Projects:    []Project{},
		Experiences: []Experience{},
		Skills:      []string{},
	}

	for i := range sections {
		s := &sections[i]
		switch s.Type {
		case SectionHero:
			if b.HeroSection == nil && IsHeroData(s.Data) {
				b.HeroSection = s
			}
		case SectionAbout:
			if b.AboutData == nil && IsAboutData(s.Data) {
				var data AboutData
				if err := json.Unmarshal(s.Data, &data); err == nil {
					b.AboutData = &data
				}
			}
		case SectionProjects:
			if b.ProjectsSection == nil && IsProjectsData(s.Data) {
				var data ProjectsData
				if err := json.Unmarshal(s.Data, &data); err == nil {
					b.ProjectsSection = s
					if data.Projects != nil {
						b.Projects = data.Projects
					}
				}
			}
		case SectionExperience:
			if b.ExperienceSection == nil && IsExperienceData(s.Data) {
				var data ExperienceData
				if err := json.Unmarshal(s.Data, &data); err == nil {
					b.ExperienceSection = s
					if data.Experiences != nil {
						b.Experiences = data.Experiences
					}
				}
			}
		case SectionSkills:
			if b.SkillsSection == nil && IsSkillsData(s.Data) {
				var data SkillsData
				if err := json.Unmarshal(s.Data, &data); err == nil {
					b.SkillsSection = s
					if data.Skills != nil {
						b.Skills = data.Skills
					}
				}
			}
		}
	}

	return b
}

// HeroData 解码 hero 区块的负载；区块缺失或解码失败时返回零值。
func (b Bundle) HeroData() HeroData {
	var data HeroData
	if b.HeroSection == nil {
		return data
	}
	_ = json.Unmarshal(b.HeroSection.Data, &data)
	return data
}
