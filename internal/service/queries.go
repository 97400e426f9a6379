package service

import "github.com/emrgen/linkfeed/internal/gql"

const linkFields = `
fragment LinkFields on Link {
	id
	createdAt
	url
	description
	postedBy {
		id
		name
	}
	votes {
		id
		user {
			id
		}
	}
}
`

var (
	FeedQuery = gql.MustParse(`
query FeedQuery {
	feed {
		count
		links {
			...LinkFields
		}
	}
}
` + linkFields)

	FeedSearchQuery = gql.MustParse(`
query FeedSearchQuery($filter: String!) {
	feed(filter: $filter) {
		count
		links {
			...LinkFields
		}
	}
}
` + linkFields)

	// the link carries no id, so its votes only reach the cached feed
	// through the patch in Vote
	VoteMutation = gql.MustParse(`
mutation VoteMutation($linkId: ID!) {
	vote(linkId: $linkId) {
		id
		link {
			votes {
				id
				user {
					id
				}
			}
		}
		user {
			id
		}
	}
}
`)

	PostMutation = gql.MustParse(`
mutation PostMutation($description: String!, $url: String!) {
	post(description: $description, url: $url) {
		...LinkFields
	}
}
` + linkFields)

	SignupMutation = gql.MustParse(`
mutation SignupMutation($email: String!, $password: String!, $name: String!) {
	signup(email: $email, password: $password, name: $name) {
		token
		user {
			id
			name
		}
	}
}
`)

	LoginMutation = gql.MustParse(`
mutation LoginMutation($email: String!, $password: String!) {
	login(email: $email, password: $password) {
		token
		user {
			id
			name
		}
	}
}
`)

	NewLinksSubscription = gql.MustParse(`
subscription NewLinks {
	newLink {
		...LinkFields
	}
}
` + linkFields)

	NewVotesSubscription = gql.MustParse(`
subscription NewVotes {
	newVote {
		id
		link {
			...LinkFields
		}
		user {
			id
		}
	}
}
` + linkFields)
)
