package domain

import "sort"

// Catalog maps a topic key to the categories that belong to it.
type Catalog map[string][]string

// DefaultCatalog is the fixed topic/category mapping offered to users.
var DefaultCatalog = Catalog{
	"programming":       {"Java", "Python", "Node.js", "React", ".NET Core", "Go"},
	"databases":         {"SQL", "NoSQL", "Performance", "MySQL", "PostgreSQL", "Oracle"},
	"networking":        {"Protocols", "Topologies", "Security", "Hardware", "General", "Cloud Networking"},
	"linux":             {"Command Line", "System Admin", "Scripting", "Security", "General", "Kernel"},
	"cloud-native":      {"Containers", "AWS", "Azure", "GCP", "Kubernetes", "Serverless"},
	"general-knowledge": {"History", "Geography", "Mathematics", "Arts", "Science", "Technology"},
}

// Topics returns the topic keys sorted alphabetically.
func (c Catalog) Topics() []string {
	topics := make([]string, 0, len(c))
	for topic := range c {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// HasTopic reports whether the topic key exists.
func (c Catalog) HasTopic(topic string) bool {
	_, ok := c[topic]
	return ok
}

// HasCategory reports whether category belongs to topic.
func (c Catalog) HasCategory(topic, category string) bool {
	return contains(c[topic], category)
}
