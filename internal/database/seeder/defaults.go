package seeder

func Defaults() []Seeder {
	return []Seeder{
		ScraperConfigSeeder{},
	}
}
